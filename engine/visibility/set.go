package visibility

import (
	"slices"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/go-logr/logr"
)

// Filter selects which objects a Query keeps.
type Filter uint8

const (
	// FilterRenderable keeps only objects with something to draw.
	FilterRenderable Filter = 1 << iota
	// FilterCasters keeps only shadow casters.
	FilterCasters
	// FilterReceivers keeps only shadow receivers.
	FilterReceivers
)

const defaultChunkSize = 64

// Query describes one culling pass.
type Query struct {
	// Frustum is the volume objects must intersect.
	Frustum common.Frustum
	// SkipPlanes is a bit mask of frustum planes to ignore (bit i = plane i).
	SkipPlanes uint8
	// Filter is the set of object flags an object must carry to be kept.
	Filter Filter
	// Frame is the frame counter the set is computed on.
	Frame int64
}

// Set is the result of culling a list of objects against a frustum.
type Set interface {
	// Compute replaces the set's contents with the objects that pass q. Receiver
	// bounds are accumulated over every receiver inside the frustum, whether or
	// not the receiver passes the filter.
	//
	// Parameters:
	//   - objects: the candidate objects
	//   - q: the culling query
	Compute(objects []Object, q Query)

	// Objects returns the visible objects in candidate order.
	//
	// Returns:
	//   - []Object: a copy of the visible object list
	Objects() []Object

	// Len returns the number of visible objects.
	//
	// Returns:
	//   - int: the count
	Len() int

	// IsEmpty reports whether nothing is visible.
	//
	// Returns:
	//   - bool: true if the set holds no objects
	IsEmpty() bool

	// Contains reports whether the object with the given id is visible.
	//
	// Parameters:
	//   - id: the object id
	//
	// Returns:
	//   - bool: true if the object is in the set
	Contains(id uint64) bool

	// IsObjectDirtySince reports whether any visible object was modified on or
	// after frame, or has been removed from its scene.
	//
	// Parameters:
	//   - frame: the epoch to compare against
	//
	// Returns:
	//   - bool: true if a visible object changed
	IsObjectDirtySince(frame int64) bool

	// CasterBounds returns the union of the bounds of visible shadow casters.
	//
	// Returns:
	//   - common.BoundingBox: the caster bounds, empty if there are none
	CasterBounds() common.BoundingBox

	// ReceiverBounds returns the union of the bounds of shadow receivers inside the frustum.
	//
	// Returns:
	//   - common.BoundingBox: the receiver bounds, empty if there are none
	ReceiverBounds() common.BoundingBox

	// Frame returns the frame the set was last computed on.
	//
	// Returns:
	//   - int64: the frame counter, or -1 if the set was never computed
	Frame() int64

	// Clear empties the set.
	Clear()
}

type setImpl struct {
	mu *sync.RWMutex

	name      string
	log       logr.Logger
	pool      worker.DynamicWorkerPool
	chunkSize int

	objects   []Object
	ids       map[uint64]struct{}
	casters   common.BoundingBox
	receivers common.BoundingBox
	frame     int64
}

var _ Set = &setImpl{}

// NewSet creates an empty Set.
//
// Parameters:
//   - name: a label used in log output
//   - options: functional options configuring the set
//
// Returns:
//   - Set: the new set
func NewSet(name string, options ...SetBuilderOption) Set {
	s := &setImpl{
		mu:        &sync.RWMutex{},
		name:      name,
		log:       logr.Discard(),
		chunkSize: defaultChunkSize,
		ids:       make(map[uint64]struct{}),
		casters:   common.EmptyBoundingBox(),
		receivers: common.EmptyBoundingBox(),
		frame:     -1,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

type chunkResult struct {
	objects   []Object
	casters   common.BoundingBox
	receivers common.BoundingBox
}

func (s *setImpl) Compute(objects []Object, q Query) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := (len(objects) + s.chunkSize - 1) / s.chunkSize
	results := make([]chunkResult, chunks)

	// Chunks write to their own slot so the merged order matches candidate order.
	if s.pool != nil && chunks > 1 {
		var wg sync.WaitGroup
		for c := 0; c < chunks; c++ {
			lo := c * s.chunkSize
			hi := min(lo+s.chunkSize, len(objects))
			idx := c
			wg.Add(1)
			s.pool.SubmitTask(worker.Task{
				ID: idx,
				Do: func() (any, error) {
					defer wg.Done()
					results[idx] = cullChunk(objects[lo:hi], q)
					return nil, nil
				},
			})
		}
		wg.Wait()
	} else {
		for c := 0; c < chunks; c++ {
			lo := c * s.chunkSize
			hi := min(lo+s.chunkSize, len(objects))
			results[c] = cullChunk(objects[lo:hi], q)
		}
	}

	s.objects = s.objects[:0]
	clear(s.ids)
	s.casters = common.EmptyBoundingBox()
	s.receivers = common.EmptyBoundingBox()
	for _, r := range results {
		for _, o := range r.objects {
			s.objects = append(s.objects, o)
			s.ids[o.ID()] = struct{}{}
		}
		s.casters.Extend(r.casters)
		s.receivers.Extend(r.receivers)
	}
	s.frame = q.Frame

	if s.log.V(2).Enabled() {
		s.log.V(2).Info("visibility computed", "set", s.name, "frame", q.Frame, "candidates", len(objects), "visible", len(s.objects))
	}
}

func cullChunk(objects []Object, q Query) chunkResult {
	res := chunkResult{
		casters:   common.EmptyBoundingBox(),
		receivers: common.EmptyBoundingBox(),
	}
	for _, o := range objects {
		if o == nil || !o.Alive() {
			continue
		}
		b := o.WorldBounds()
		if !q.Frustum.TestAABB(b, q.SkipPlanes) {
			continue
		}
		if o.ReceivesShadows() {
			res.receivers.Extend(b)
		}
		if q.Filter&FilterRenderable != 0 && !o.IsRenderable() {
			continue
		}
		if q.Filter&FilterCasters != 0 && !o.CastsShadows() {
			continue
		}
		if q.Filter&FilterReceivers != 0 && !o.ReceivesShadows() {
			continue
		}
		res.objects = append(res.objects, o)
		if o.CastsShadows() {
			res.casters.Extend(b)
		}
	}
	return res
}

func (s *setImpl) Objects() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.objects)
}

func (s *setImpl) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *setImpl) IsEmpty() bool {
	return s.Len() == 0
}

func (s *setImpl) Contains(id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *setImpl) IsObjectDirtySince(frame int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.objects {
		if !o.Alive() || IsDirtySince(o, frame) {
			return true
		}
	}
	return false
}

func (s *setImpl) CasterBounds() common.BoundingBox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.casters
}

func (s *setImpl) ReceiverBounds() common.BoundingBox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receivers
}

func (s *setImpl) Frame() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

func (s *setImpl) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = s.objects[:0]
	clear(s.ids)
	s.casters = common.EmptyBoundingBox()
	s.receivers = common.EmptyBoundingBox()
}
