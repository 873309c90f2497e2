package pool

import (
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
)

// Category is the pool category a resource is requested from or lives in.
type Category int

const (
	// CategoryUnknown is the zero value and never matches a resource.
	CategoryUnknown Category = iota
	// CategoryCached resources are owned by one requester at a time, per channel.
	CategoryCached
	// CategoryShared resources are handed to any requester and hold no ownership.
	// A Shared resource returned for a Cached request is a default resource.
	CategoryShared
)

func (c Category) String() string {
	switch c {
	case CategoryCached:
		return "Cached"
	case CategoryShared:
		return "Shared"
	default:
		return "Unknown"
	}
}

// Role tags what a description is used for inside a generator.
type Role int

const (
	RoleNone Role = iota
	RoleDepthStencilBuffer
	RoleDepthMap
	RoleColorMap
	RoleStatisticsMap
	RoleNormalMap
	RoleEdgeMap
	RoleDepthNormalMap
)

func (r Role) String() string {
	switch r {
	case RoleDepthStencilBuffer:
		return "DepthStencilBuffer"
	case RoleDepthMap:
		return "DepthMap"
	case RoleColorMap:
		return "ColorMap"
	case RoleStatisticsMap:
		return "StatisticsMap"
	case RoleNormalMap:
		return "NormalMap"
	case RoleEdgeMap:
		return "EdgeMap"
	case RoleDepthNormalMap:
		return "DepthNormalMap"
	default:
		return "None"
	}
}

// OwnerID identifies a requester. Zero means "no owner".
type OwnerID uint64

// NoOwner marks a channel nobody holds.
const NoOwner OwnerID = 0

// DataType identifies the kind of data a requester stores in a resource, so a
// reset can target one kind of requester at a time.
type DataType uint32

// DataTypeAny matches every data type.
const DataTypeAny DataType = 0xFFFFFFFF

// ResourceHandle indexes a physical resource in the pool's arena.
type ResourceHandle int32

// NoResource is the invalid handle.
const NoResource ResourceHandle = -1

// ChannelMask is a bit set of color channels, bit 0 = red.
type ChannelMask uint32

const (
	ChannelNone  ChannelMask = 0
	ChannelRed   ChannelMask = 1 << 0
	ChannelGreen ChannelMask = 1 << 1
	ChannelBlue  ChannelMask = 1 << 2
	ChannelAlpha ChannelMask = 1 << 3
	ChannelAll   ChannelMask = ChannelRed | ChannelGreen | ChannelBlue | ChannelAlpha
)

// Count returns the number of channels in the mask.
func (m ChannelMask) Count() uint32 {
	var n uint32
	for b := m; b != 0; b &= b - 1 {
		n++
	}
	return n
}

// Description is a request for one pool resource. The Target's Name is filled
// in by the pool when a resource is created from it.
type Description struct {
	Category Category
	Target   renderer.TargetDescriptor
	// ChannelCount is the number of channels requested. Zero requests all of them.
	ChannelCount uint32
	Sampler      common.SamplerStagingData
	Role         Role
}

// DepthFormat is a depth format the device supports, with the sampler state
// used to read it.
type DepthFormat struct {
	Format      renderer.BufferFormat
	DepthBits   uint32
	StencilBits uint32
	Caps        renderer.FormatCaps
	Sampler     common.SamplerStagingData
}

// Config sizes the pool.
type Config struct {
	// MemoryLimitMB caps the memory used by Cached resources. Zero disables Cached maps.
	MemoryLimitMB uint32 `yaml:"memoryLimitMB"`
	// MinResolution and MaxResolution bound the power-of-two sizes the pool serves.
	MinResolution uint32 `yaml:"minResolution"`
	MaxResolution uint32 `yaml:"maxResolution"`
	// MaxSharedPerType caps how many Shared resources exist per format and size.
	MaxSharedPerType uint32 `yaml:"maxSharedPerType"`
}

// DefaultConfig returns a 64 MB pool serving 32..2048 with two Shared maps per type.
func DefaultConfig() Config {
	return Config{MemoryLimitMB: 64, MinResolution: 32, MaxResolution: 2048, MaxSharedPerType: 2}
}

// ResampleChain is the scratch target used to downsample resources of one format.
type ResampleChain struct {
	Format     renderer.BufferFormat
	Resolution uint32
	Resource   ResourceHandle
	Texture    renderer.TextureHandle
}

// Levels returns how many halvings fit between the chain resolution and 1.
func (c ResampleChain) Levels() uint32 {
	return common.Log2(c.Resolution) + 1
}
