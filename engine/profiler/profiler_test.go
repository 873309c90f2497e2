package profiler

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestSections(t *testing.T) {
	c := &fakeClock{t: time.Unix(100, 0)}
	p := NewProfiler(WithClock(c.now), WithUpdateInterval(time.Hour))

	p.BeginProcess("Lights")
	c.advance(3 * time.Millisecond)
	if d := p.EndProcess("Lights"); d != 3*time.Millisecond {
		t.Fatalf("EndProcess = %v, want 3ms", d)
	}
	p.BeginProcess("Lights")
	c.advance(5 * time.Millisecond)
	p.EndProcess("Lights")
	p.BeginProcess("Shadow Map Population")
	c.advance(time.Millisecond)
	p.EndProcess("Shadow Map Population")

	if d := p.EndProcess("RSM Population"); d != 0 {
		t.Errorf("EndProcess of a closed section = %v, want 0", d)
	}

	want := []Section{
		{Name: "Lights", Calls: 2, Total: 8 * time.Millisecond, Max: 5 * time.Millisecond},
		{Name: "Shadow Map Population", Calls: 1, Total: time.Millisecond, Max: time.Millisecond},
	}
	if diff := cmp.Diff(want, p.Sections()); diff != "" {
		t.Errorf("Sections() mismatch (-want +got):\n%s", diff)
	}
}

func TestTickResetsSections(t *testing.T) {
	c := &fakeClock{t: time.Unix(100, 0)}
	p := NewProfiler(WithClock(c.now), WithUpdateInterval(time.Second))

	p.BeginProcess("Lights")
	p.EndProcess("Lights")
	if p.Tick() {
		t.Fatal("Tick logged before the interval elapsed")
	}
	c.advance(2 * time.Second)
	if !p.Tick() {
		t.Fatal("Tick did not log after the interval elapsed")
	}
	if got := p.Sections(); len(got) != 0 {
		t.Errorf("Sections() after a logged tick = %v, want none", got)
	}
}

func TestNilProfiler(t *testing.T) {
	var p *Profiler
	p.BeginProcess("Lights")
	if d := p.EndProcess("Lights"); d != 0 {
		t.Errorf("EndProcess on nil = %v", d)
	}
	if p.Sections() != nil {
		t.Error("Sections on nil should be nil")
	}
}
