package visibility

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/google/go-cmp/cmp"
)

type fakeObject struct {
	id         uint64
	bounds     common.BoundingBox
	dirty      int64
	removed    bool
	caster     bool
	receiver   bool
	renderable bool
}

func (o *fakeObject) ID() uint64                      { return o.id }
func (o *fakeObject) Name() string                    { return "fake" }
func (o *fakeObject) WorldBounds() common.BoundingBox { return o.bounds }
func (o *fakeObject) DirtyFrame() int64               { return o.dirty }
func (o *fakeObject) Alive() bool                     { return !o.removed }
func (o *fakeObject) CastsShadows() bool              { return o.caster }
func (o *fakeObject) ReceivesShadows() bool           { return o.receiver }
func (o *fakeObject) IsRenderable() bool              { return o.renderable }

func box(x, y, z float32) common.BoundingBox {
	return common.NewBoundingBox([3]float32{x, y, z}, [3]float32{1, 1, 1})
}

// orthoQuery looks down -Z from the origin over a 20x20 window, 0.1..100 deep.
func orthoQuery(filter Filter, frame int64) Query {
	m := make([]float32, 16)
	common.Ortho(m, -10, 10, -10, 10, 0.1, 100)
	return Query{Frustum: common.ExtractFrustumFromMatrix(m), Filter: filter, Frame: frame}
}

func ids(objs []Object) []uint64 {
	out := make([]uint64, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.ID())
	}
	return out
}

func scene() []Object {
	return []Object{
		&fakeObject{id: 1, bounds: box(0, 0, -50), caster: true, receiver: true, renderable: true},
		&fakeObject{id: 2, bounds: box(50, 0, -50), caster: true, renderable: true},
		&fakeObject{id: 3, bounds: box(2, 2, -20), receiver: true, renderable: true},
		&fakeObject{id: 4, bounds: box(0, 0, -500), caster: true, renderable: true},
		&fakeObject{id: 5, bounds: box(-5, 0, -10), caster: true, renderable: true, removed: true},
		&fakeObject{id: 6, bounds: box(-5, -5, -30), caster: true, renderable: true},
	}
}

func TestComputeFiltersAndBounds(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []uint64
	}{
		{"renderable", FilterRenderable, []uint64{1, 3, 6}},
		{"casters", FilterRenderable | FilterCasters, []uint64{1, 6}},
		{"receivers", FilterReceivers, []uint64{1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSet(tt.name)
			s.Compute(scene(), orthoQuery(tt.filter, 7))
			if diff := cmp.Diff(tt.want, ids(s.Objects())); diff != "" {
				t.Errorf("visible ids (-want +got):\n%s", diff)
			}
			if s.Frame() != 7 {
				t.Errorf("frame = %d, want 7", s.Frame())
			}
		})
	}

	s := NewSet("casters")
	s.Compute(scene(), orthoQuery(FilterCasters, 1))
	wantCasters := common.BoundingBox{Min: [3]float32{-6, -6, -51}, Max: [3]float32{1, 1, -29}}
	if diff := cmp.Diff(wantCasters, s.CasterBounds()); diff != "" {
		t.Errorf("caster bounds (-want +got):\n%s", diff)
	}
	// Object 3 is not a caster but still widens the receiver bounds.
	wantReceivers := common.BoundingBox{Min: [3]float32{-1, -1, -51}, Max: [3]float32{3, 3, -19}}
	if diff := cmp.Diff(wantReceivers, s.ReceiverBounds()); diff != "" {
		t.Errorf("receiver bounds (-want +got):\n%s", diff)
	}
}

func TestComputeOnWorkerPoolKeepsOrder(t *testing.T) {
	var objs []Object
	for i := 0; i < 200; i++ {
		x := float32(i%40) - 20
		objs = append(objs, &fakeObject{id: uint64(i + 1), bounds: box(x, 0, -50), caster: i%3 != 0, renderable: true})
	}

	seq := NewSet("sequential")
	seq.Compute(objs, orthoQuery(FilterCasters, 3))

	pool := worker.NewDynamicWorkerPool(4, 64, time.Second)
	par := NewSet("parallel", WithWorkerPool(pool), WithChunkSize(7))
	par.Compute(objs, orthoQuery(FilterCasters, 3))

	if seq.IsEmpty() {
		t.Fatal("expected visible casters")
	}
	if diff := cmp.Diff(ids(seq.Objects()), ids(par.Objects())); diff != "" {
		t.Errorf("parallel result differs (-seq +par):\n%s", diff)
	}
	if diff := cmp.Diff(seq.CasterBounds(), par.CasterBounds()); diff != "" {
		t.Errorf("caster bounds differ (-seq +par):\n%s", diff)
	}
}

func TestIsObjectDirtySince(t *testing.T) {
	a := &fakeObject{id: 1, bounds: box(0, 0, -50), caster: true, renderable: true, dirty: 4}
	b := &fakeObject{id: 2, bounds: box(3, 0, -50), caster: true, renderable: true, dirty: 2}
	s := NewSet("dirty")
	s.Compute([]Object{a, b}, orthoQuery(FilterCasters, 5))

	if !s.IsObjectDirtySince(4) {
		t.Error("object dirtied on frame 4 must count as dirty since frame 4")
	}
	if s.IsObjectDirtySince(5) {
		t.Error("no object changed on or after frame 5")
	}

	b.removed = true
	if !s.IsObjectDirtySince(5) {
		t.Error("a removed visible object must count as dirty")
	}

	if !s.Contains(1) || s.Contains(99) {
		t.Error("Contains mismatch")
	}
	s.Clear()
	if !s.IsEmpty() || s.Contains(1) {
		t.Error("Clear left objects behind")
	}
	if !s.CasterBounds().IsEmpty() {
		t.Error("Clear left caster bounds behind")
	}
}
