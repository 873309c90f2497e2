package grid

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"
)

type fakeLight struct {
	id          uint64
	directional bool
	pos         [3]float32
	rng         float32
	color       [3]float32
	hdr         float32
	ambient     float32
}

func (l *fakeLight) ID() uint64                  { return l.id }
func (l *fakeLight) IsDirectional() bool         { return l.directional }
func (l *fakeLight) Position() [3]float32        { return l.pos }
func (l *fakeLight) OuterRange() float32         { return l.rng }
func (l *fakeLight) DiffuseColor() [3]float32    { return l.color }
func (l *fakeLight) DiffuseHDRScale() float32    { return l.hdr }
func (l *fakeLight) AmbientFarHDRScale() float32 { return l.ambient }

type step struct {
	name   string
	lights int
	static bool
}

type recordingIntegrator struct {
	steps []step
	fail  bool
}

func (i *recordingIntegrator) record(name string, lights int, static bool) bool {
	i.steps = append(i.steps, step{name: name, lights: lights, static: static})
	return !i.fail
}

func (i *recordingIntegrator) Gather(v Volume, lights []Light, static bool) bool {
	return i.record("Gather", len(lights), static)
}

func (i *recordingIntegrator) Inject(v Volume, lights []Light, static bool) bool {
	return i.record("Inject", len(lights), static)
}

func (i *recordingIntegrator) Propagate(v Volume, static bool) bool {
	return i.record("Propagate", 0, static)
}

func (i *recordingIntegrator) Reproject(v Volume, lights []Light, static bool) bool {
	return i.record("Reproject", len(lights), static)
}

func newContext(t *testing.T) *frame.Context {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithCapabilities(renderer.DesktopCapabilities()))
	return frame.NewContext(r, frame.NewClock(), logr.Discard())
}

func advanceTo(ctx *frame.Context, f int64) {
	for ctx.Frame() < f {
		ctx.Clock.Advance(1.0 / 60)
	}
}

func lookingDown(x float32) camera.Camera {
	return camera.NewCamera(camera.WithLookAt([3]float32{x, 0.5, 0.5}, [3]float32{x, 0.5, -0.5}, [3]float32{0, 1, 0}))
}

func tasks(f int64, static bool, types ...TaskType) []Task {
	out := make([]Task, len(types))
	for i, typ := range types {
		out[i] = Task{Type: typ, Frame: f, Static: static}
	}
	return out
}

func TestInitialSchedule(t *testing.T) {
	tests := []struct {
		name    string
		method  shadow.IndirectMethod
		cascade int
		want    []Task
	}{
		{
			name:   "radiance hints",
			method: shadow.IndirectRadianceHints,
			want: append(append(
				tasks(1, true, TaskReassignRSMs, TaskFillRSMs, TaskGatherRSMs),
				tasks(1, false, TaskReassignRSMs, TaskFillRSMs, TaskGatherRSMs)...),
				tasks(2, false, TaskReassignRSMs, TaskFillRSMs, TaskGatherRSMs)...),
		},
		{
			name:    "propagation volumes second cascade",
			method:  shadow.IndirectPropagationVolumes | shadow.IndirectVTF,
			cascade: 1,
			want: append(
				tasks(1, false, TaskReassignRSMs, TaskFillRSMs, TaskInjectRSMs, TaskPropagate),
				tasks(3, false, TaskReassignRSMs, TaskFillRSMs, TaskInjectRSMs, TaskPropagate)...),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrid(newContext(t), tt.method, WithCascade(tt.cascade))
			if diff := cmp.Diff(tt.want, g.Tasks()); diff != "" {
				t.Errorf("initial tasks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGridExtents(t *testing.T) {
	tests := []struct {
		name   string
		dir    float32
		lo, hi float32
	}{
		{name: "perpendicular", dir: 0, lo: -16, hi: 16},
		{name: "looking up the axis", dir: 1, lo: -1, hi: 31},
		{name: "looking down the axis", dir: -1, lo: -31, hi: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := gridExtents(0, tt.dir, 32, 32, 1)
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("gridExtents() = [%v, %v], want [%v, %v]", lo, hi, tt.lo, tt.hi)
			}
		})
	}
}

func TestUpdateSnapsAndTracksMovement(t *testing.T) {
	g := NewGrid(newContext(t), shadow.IndirectRadianceHints, WithDimensions(8, 8, 8), WithCellSize(2))

	g.Update(lookingDown(0.5), 0)
	if !g.IsDirty() {
		t.Error("first Update did not mark the grid dirty")
	}
	b := g.Bounds()
	if b.Min[0] != -8 || b.Max[0] != 8 {
		t.Errorf("x extents = [%v, %v], want [-8, 8]", b.Min[0], b.Max[0])
	}
	if size := b.Max[2] - b.Min[2]; size != 16 {
		t.Errorf("z size = %v, want 16", size)
	}
	if b.Max[2] >= 8 {
		t.Errorf("z max = %v, the volume was not pushed ahead of the camera", b.Max[2])
	}

	g.Update(lookingDown(1.5), 0)
	if g.IsDirty() {
		t.Error("moving within a cell marked the grid dirty")
	}

	g.Update(lookingDown(2.5), 0)
	if !g.IsDirty() {
		t.Error("crossing a cell did not mark the grid dirty")
	}
	if shift := g.CellShift(); shift[0] != 1 {
		t.Errorf("CellShift()[0] = %v, want 1", shift[0])
	}

	g.Update(lookingDown(2.5), 8)
	if b := g.Bounds(); b.Min[0] != -8 {
		t.Errorf("x min with snap 8 = %v, want -8", b.Min[0])
	}
}

func TestAffectsGrid(t *testing.T) {
	bounds := common.BoundingBox{Min: [3]float32{-8, -8, -8}, Max: [3]float32{8, 8, 8}}
	white := [3]float32{1, 1, 1}
	tests := []struct {
		name  string
		light *fakeLight
		hdr   bool
		want  bool
	}{
		{name: "directional", light: &fakeLight{directional: true, pos: [3]float32{1000, 0, 0}}, want: true},
		{name: "inside", light: &fakeLight{pos: [3]float32{1, 2, 3}}, want: true},
		{name: "range reaches", light: &fakeLight{pos: [3]float32{20, 0, 0}, rng: 13}, want: true},
		{name: "range short dim", light: &fakeLight{pos: [3]float32{20, 0, 0}, rng: 5, color: [3]float32{0.1, 0.1, 0.1}, ambient: 1}, want: false},
		{name: "bright past range", light: &fakeLight{pos: [3]float32{20, 0, 0}, rng: 5, color: [3]float32{0.2, 1, 0.5}, ambient: 1}, want: true},
		{name: "far", light: &fakeLight{pos: [3]float32{1000, 0, 0}, rng: 5, color: white, ambient: 1}, want: false},
		// 1 * 2 * 1 / 144 = 0.0139 passes the HDR threshold.
		{name: "hdr scale", light: &fakeLight{pos: [3]float32{20, 0, 0}, rng: 5, color: white, hdr: 2, ambient: 1}, hdr: true, want: true},
		// 1 * 1 * 1 / 144 = 0.0069 fails it.
		{name: "hdr threshold", light: &fakeLight{pos: [3]float32{20, 0, 0}, rng: 5, color: white, hdr: 1, ambient: 1}, hdr: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AffectsBounds(tt.light, bounds, tt.hdr); got != tt.want {
				t.Errorf("AffectsBounds() = %v, want %v", got, tt.want)
			}
		})
	}

	ctx := newContext(t)
	g := NewGrid(ctx, shadow.IndirectRadianceHints)
	if g.AffectsGrid(&fakeLight{pos: [3]float32{0, 0, 0}, color: white, ambient: 1}) {
		t.Error("AffectsGrid() before the first Update accepted a point light")
	}
}

func TestAddLightsSchedulesRefreshes(t *testing.T) {
	ctx := newContext(t)
	g := NewGrid(ctx, shadow.IndirectRadianceHints, WithDimensions(8, 8, 8), WithCellSize(2))
	advanceTo(ctx, 5)
	g.Update(lookingDown(0.5), 0)

	sun := &fakeLight{id: 1, directional: true}
	lamp := &fakeLight{id: 2, pos: [3]float32{0, 1, -2}}
	torch := &fakeLight{id: 3, pos: [3]float32{1, 0, -3}}
	faraway := &fakeLight{id: 4, pos: [3]float32{5000, 0, 0}, rng: 1, color: [3]float32{1, 1, 1}, ambient: 1}

	g.AddLights([]Light{sun, lamp, faraway}, []Light{torch})
	if n := len(g.Lights(true)); n != 2 {
		t.Errorf("static lights = %d, want 2", n)
	}
	if !g.IsStaticDirty() {
		t.Error("new static lights did not mark the grid static dirty")
	}

	want := []Task{
		{Type: TaskReassignRSMs, Frame: 5, Static: true, LightEnd: 1},
		{Type: TaskFillRSMs, Frame: 5, Static: true, LightEnd: 1},
		{Type: TaskGatherRSMs, Frame: 5, Static: true, LightEnd: 1},
		{Type: TaskReassignRSMs, Frame: 5, Static: false},
		{Type: TaskFillRSMs, Frame: 5, Static: false},
		{Type: TaskReprojectGrid, Frame: 5, Static: false},
	}
	got := g.TakeTasks(5, TaskReassignRSMs, TaskFillRSMs, TaskGatherRSMs, TaskReprojectGrid)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scheduled tasks mismatch (-want +got):\n%s", diff)
	}

	advanceTo(ctx, 6)
	g.Update(lookingDown(0.5), 0)
	g.AddLights([]Light{lamp, sun}, []Light{torch})
	if g.IsStaticDirty() {
		t.Error("the same static lights marked the grid static dirty")
	}
	if got := g.TakeTasks(6, TaskReassignRSMs, TaskFillRSMs, TaskGatherRSMs, TaskReprojectGrid); len(got) != 0 {
		t.Errorf("an unchanged frame scheduled %d tasks", len(got))
	}

	advanceTo(ctx, 7)
	g.Update(lookingDown(4.5), 0)
	g.AddLights([]Light{lamp, sun}, nil)
	want = []Task{
		{Type: TaskReassignRSMs, Frame: 7, Static: true, LightEnd: 1},
		{Type: TaskFillRSMs, Frame: 7, Static: true, LightEnd: 1},
		{Type: TaskReprojectGrid, Frame: 7, Static: true, LightEnd: 1},
	}
	got = g.TakeTasks(7, TaskReassignRSMs, TaskFillRSMs, TaskGatherRSMs, TaskReprojectGrid)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reprojection tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestPropagationTreatsEveryLightAsDynamic(t *testing.T) {
	ctx := newContext(t)
	g := NewGrid(ctx, shadow.IndirectPropagationVolumes)
	advanceTo(ctx, 5)
	g.Update(lookingDown(0), 0)
	before := len(g.Tasks())

	g.AddLights([]Light{&fakeLight{id: 1, directional: true}}, []Light{&fakeLight{id: 2, directional: true}})
	if n := len(g.Lights(true)); n != 0 {
		t.Errorf("static lights = %d, want 0", n)
	}
	if n := len(g.Lights(false)); n != 2 {
		t.Errorf("dynamic lights = %d, want 2", n)
	}
	if after := len(g.Tasks()); after != before {
		t.Errorf("AddLights scheduled %d tasks for propagation volumes", after-before)
	}
}

func TestAddTaskDeduplicatesAndClamps(t *testing.T) {
	g := NewGrid(newContext(t), shadow.IndirectRadianceHints)
	task := Task{Type: TaskBounce, Frame: 10, Static: true, LightEnd: AllLights}
	if !g.AddTask(task) {
		t.Fatal("AddTask() rejected a new task")
	}
	if g.AddTask(task) {
		t.Error("AddTask() accepted a duplicate")
	}
	task.Frame = 11
	if !g.AddTask(task) {
		t.Error("AddTask() rejected a task for another frame")
	}
	for _, q := range g.Tasks() {
		if q.LightEnd != 0 {
			t.Errorf("task %v LightEnd = %d, want 0 with no lights", q.Type, q.LightEnd)
		}
	}
}

func TestProcessTasksReschedulesDynamicRefresh(t *testing.T) {
	ctx := newContext(t)
	rec := &recordingIntegrator{}
	g := NewGrid(ctx, shadow.IndirectRadianceHints, WithIntegrator(rec), WithDynamicUpdateFrames(15))

	advanceTo(ctx, 1)
	g.Update(lookingDown(0), 0)
	g.AddLights([]Light{&fakeLight{id: 1, directional: true}}, []Light{&fakeLight{id: 2, directional: true}})
	if !g.ProcessTasks() {
		t.Fatal("ProcessTasks() failed on frame 1")
	}
	for _, q := range g.Tasks() {
		if q.Frame == 1 {
			t.Errorf("task %v for frame 1 was left in the queue", q.Type)
		}
	}

	advanceTo(ctx, 2)
	g.ProcessTasks()
	want := append(
		tasks(3, false, TaskReassignRSMs, TaskFillRSMs),
		tasks(3, false, TaskGatherRSMs)...)
	if diff := cmp.Diff(want, g.Tasks()); diff != "" {
		t.Errorf("warmup reschedule mismatch (-want +got):\n%s", diff)
	}

	advanceTo(ctx, 40)
	g.AddTask(Task{Type: TaskGatherRSMs, Frame: 40})
	g.ProcessTasks()
	var later []Task
	for _, q := range g.Tasks() {
		if q.Frame > 40 {
			later = append(later, q)
		}
	}
	want = append(
		tasks(54, false, TaskReassignRSMs, TaskFillRSMs),
		tasks(55, false, TaskGatherRSMs)...)
	if diff := cmp.Diff(want, later); diff != "" {
		t.Errorf("steady reschedule mismatch (-want +got):\n%s", diff)
	}

	wantSteps := []step{
		{name: "Gather", lights: 1, static: true},
		{name: "Gather", lights: 1, static: false},
		{name: "Gather", lights: 1, static: false},
		{name: "Gather", lights: 1, static: false},
	}
	if diff := cmp.Diff(wantSteps, rec.steps, cmp.AllowUnexported(step{})); diff != "" {
		t.Errorf("integrator steps mismatch (-want +got):\n%s", diff)
	}
	if !g.IsDynamicDirty() {
		t.Error("a dynamic gather did not mark the grid dynamic dirty")
	}
}

func TestIntegratorFailureIsLogged(t *testing.T) {
	ctx := newContext(t)
	var logs []string
	l := funcr.New(func(prefix, args string) { logs = append(logs, prefix+" "+args) }, funcr.Options{})
	g := NewGrid(ctx, shadow.IndirectPropagationVolumes, WithIntegrator(&recordingIntegrator{fail: true}), WithLogger(l))

	advanceTo(ctx, 1)
	g.Update(lookingDown(0), 0)
	g.AddLights(nil, []Light{&fakeLight{id: 1, directional: true}})
	if g.ProcessTasks() {
		t.Error("ProcessTasks() = true with a failing integrator")
	}
	joined := strings.Join(logs, "\n")
	if !strings.Contains(joined, "radiance grid task failed") || !strings.Contains(joined, `"task"="InjectRSMs"`) {
		t.Errorf("missing failure log, got:\n%s", joined)
	}
}

func TestRendererIntegratorRecordsDraws(t *testing.T) {
	ctx := newContext(t)
	g := NewGrid(ctx, shadow.IndirectRadianceHints, WithCascade(2))
	advanceTo(ctx, 1)
	g.Update(lookingDown(0), 0)
	g.AddLights([]Light{&fakeLight{id: 1, directional: true}}, nil)
	ctx.Renderer.ResetEvents()
	g.ProcessTasks()

	var labels []string
	for _, ev := range ctx.Renderer.Events() {
		if ev.Kind == renderer.EventDraw {
			labels = append(labels, ev.Label)
		}
	}
	want := []string{"RadianceGrid[2].Gather(Static)"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("draw labels mismatch (-want +got):\n%s", diff)
	}
}
