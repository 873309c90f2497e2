package pool

import (
	"math/bits"

	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
)

// Resource is a physical pool texture. Resources are owned by the pool; callers
// hold ResourceHandles and look the resource up when they need it.
type Resource interface {
	// Handle returns the resource's arena index.
	//
	// Returns:
	//   - ResourceHandle: the handle
	Handle() ResourceHandle

	// Category returns whether the resource is Cached or Shared.
	//
	// Returns:
	//   - Category: the pool category
	Category() Category

	// Descriptor returns the texture descriptor the resource was created with.
	//
	// Returns:
	//   - renderer.TargetDescriptor: the descriptor, including the pool generated name
	Descriptor() renderer.TargetDescriptor

	// Texture returns the renderer texture backing the resource.
	//
	// Returns:
	//   - renderer.TextureHandle: the texture
	Texture() renderer.TextureHandle

	// ChannelCount returns the number of channels of the resource's format.
	//
	// Returns:
	//   - uint32: the channel count
	ChannelCount() uint32

	// AvailableChannels returns the number of channels nobody holds.
	//
	// Returns:
	//   - uint32: the free channel count
	AvailableChannels() uint32

	// ChannelMask returns the channels the owner holds, plus free channels the
	// owner filled last.
	//
	// Parameters:
	//   - owner: the requester
	//
	// Returns:
	//   - ChannelMask: the owner's channels
	ChannelMask(owner OwnerID) ChannelMask

	// WasPreviousOwner reports whether owner was the last filler of the resource.
	// With a non-zero prev the owner's filled channels must equal prev exactly.
	//
	// Parameters:
	//   - owner: the requester
	//   - prev: the channels the requester expects to have filled, or 0 for any
	//
	// Returns:
	//   - bool: true if owner filled the resource last
	WasPreviousOwner(owner OwnerID, prev ChannelMask) bool

	// LastFillFrame returns the most recent frame the owner was assigned any channel.
	//
	// Parameters:
	//   - owner: the requester
	//
	// Returns:
	//   - int64: the frame, or frame.NeverFrame
	LastFillFrame(owner OwnerID) int64

	// Owners returns the current holder of each channel.
	//
	// Returns:
	//   - []OwnerID: one entry per channel, NoOwner for free channels
	Owners() []OwnerID
}

type channelAssignment struct {
	owner         OwnerID
	dataType      DataType
	lastFiller    OwnerID
	lastFillFrame int64
}

type resourceImpl struct {
	handle    ResourceHandle
	category  Category
	desc      renderer.TargetDescriptor
	texture   renderer.TextureHandle
	memory    uint64
	available uint32
	channels  []channelAssignment

	// lastAssigned is a pool-wide assignment sequence number; 0 means never assigned.
	lastAssigned uint64
}

var _ Resource = &resourceImpl{}

func newResource(handle ResourceHandle, category Category, desc renderer.TargetDescriptor, texture renderer.TextureHandle) *resourceImpl {
	n := max(desc.Format.Channels(), 1)
	r := &resourceImpl{
		handle:    handle,
		category:  category,
		desc:      desc,
		texture:   texture,
		memory:    desc.ByteSize(),
		available: n,
		channels:  make([]channelAssignment, n),
	}
	for i := range r.channels {
		r.channels[i] = channelAssignment{dataType: DataTypeAny, lastFillFrame: frame.NeverFrame}
	}
	return r
}

func (r *resourceImpl) Handle() ResourceHandle               { return r.handle }
func (r *resourceImpl) Category() Category                   { return r.category }
func (r *resourceImpl) Descriptor() renderer.TargetDescriptor { return r.desc }
func (r *resourceImpl) Texture() renderer.TextureHandle       { return r.texture }
func (r *resourceImpl) ChannelCount() uint32                 { return uint32(len(r.channels)) }
func (r *resourceImpl) AvailableChannels() uint32            { return r.available }

func (r *resourceImpl) ChannelMask(owner OwnerID) ChannelMask {
	var m ChannelMask
	for i, c := range r.channels {
		if c.owner == owner || (c.owner == NoOwner && c.lastFiller == owner) {
			m |= 1 << i
		}
	}
	return m
}

func (r *resourceImpl) WasPreviousOwner(owner OwnerID, prev ChannelMask) bool {
	var m ChannelMask
	for i, c := range r.channels {
		if c.lastFiller == owner {
			m |= 1 << i
		}
	}
	if prev != 0 {
		return prev == m
	}
	return m != 0
}

func (r *resourceImpl) LastFillFrame(owner OwnerID) int64 {
	last := frame.NeverFrame
	for _, c := range r.channels {
		if c.lastFiller == owner && c.lastFillFrame > last {
			last = c.lastFillFrame
		}
	}
	return last
}

func (r *resourceImpl) Owners() []OwnerID {
	out := make([]OwnerID, len(r.channels))
	for i, c := range r.channels {
		out[i] = c.owner
	}
	return out
}

// assign hands count channels to owner, reusing prev when those channels are
// still free. Shared resources report every channel and record nothing.
func (r *resourceImpl) assign(owner OwnerID, dt DataType, count uint32, prev ChannelMask, seq uint64, now int64) ChannelMask {
	if r.category == CategoryShared {
		return ChannelAll
	}
	if count == 0 {
		count = uint32(len(r.channels))
	}
	if count > r.available {
		return ChannelNone
	}

	var mask ChannelMask
	if prev != 0 && r.channelsAvailable(prev) && r.channelCount(prev) == count {
		for i := range r.channels {
			if prev&(1<<i) != 0 {
				r.channels[i].owner = owner
				r.channels[i].dataType = dt
				mask |= 1 << i
			}
		}
	} else {
		var assigned uint32
		for i := range r.channels {
			if assigned == count {
				break
			}
			if r.channels[i].owner == NoOwner {
				r.channels[i].owner = owner
				r.channels[i].dataType = dt
				mask |= 1 << i
				assigned++
			}
		}
	}

	r.available = r.freeChannels()
	r.lastAssigned = seq
	r.setFiller(owner, now)
	return mask
}

func (r *resourceImpl) unassign(owner OwnerID) {
	if r.category == CategoryShared {
		return
	}
	for i := range r.channels {
		if r.channels[i].owner == owner {
			r.channels[i].owner = NoOwner
			r.channels[i].dataType = DataTypeAny
		}
	}
	r.available = r.freeChannels()
}

// freeChannels counts the channels with no owner.
func (r *resourceImpl) freeChannels() uint32 {
	var n uint32
	for _, c := range r.channels {
		if c.owner == NoOwner {
			n++
		}
	}
	return n
}

// channelCount returns how many of the resource's channels mask selects.
func (r *resourceImpl) channelCount(mask ChannelMask) uint32 {
	return uint32(bits.OnesCount32(uint32(mask & (1<<len(r.channels) - 1))))
}

func (r *resourceImpl) clearAssignments() {
	for i := range r.channels {
		r.channels[i].owner = NoOwner
		r.channels[i].dataType = DataTypeAny
	}
	r.available = uint32(len(r.channels))
}

func (r *resourceImpl) isAssignedType(dt DataType) bool {
	for _, c := range r.channels {
		if c.dataType == dt {
			return true
		}
	}
	return false
}

func (r *resourceImpl) setFiller(owner OwnerID, now int64) {
	if r.category == CategoryShared {
		return
	}
	for i := range r.channels {
		if r.channels[i].owner == owner {
			r.channels[i].lastFiller = owner
			r.channels[i].lastFillFrame = now
		}
	}
}

func (r *resourceImpl) channelsAvailable(want ChannelMask) bool {
	for i, c := range r.channels {
		if want&(1<<i) != 0 && c.owner != NoOwner {
			return false
		}
	}
	return true
}

func (r *resourceImpl) canAccommodate(t renderer.BufferType, f renderer.BufferFormat, resolution, count uint32, dt DataType) bool {
	if t != r.desc.Type || resolution != r.desc.Width || f != r.desc.Format {
		return false
	}
	if count == 0 {
		count = uint32(len(r.channels))
	}
	if count > r.available {
		return false
	}
	if dt != DataTypeAny {
		for _, c := range r.channels {
			if c.dataType != dt && c.dataType != DataTypeAny {
				return false
			}
		}
	}
	return true
}
