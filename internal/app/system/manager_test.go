package system

import (
	"context"
	"errors"
	"testing"
)

type probeService struct {
	name     string
	startErr error
	events   *[]string
}

func (p *probeService) Name() string { return p.name }

func (p *probeService) Start(_ context.Context) error {
	*p.events = append(*p.events, "start:"+p.name)
	return p.startErr
}

func (p *probeService) Stop(_ context.Context) error {
	*p.events = append(*p.events, "stop:"+p.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&probeService{name: name, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestManagerStartRollsBackOnFailure(t *testing.T) {
	var events []string
	m := NewManager()
	boom := errors.New("boom")
	_ = m.Register(&probeService{name: "a", events: &events})
	_ = m.Register(&probeService{name: "b", startErr: boom, events: &events})
	_ = m.Register(&probeService{name: "c", events: &events})

	err := m.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
}

func TestManagerRejectsDuplicatesAndLateRegistration(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(&probeService{name: "a", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&probeService{name: "a", events: &events}); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "late"}); err == nil {
		t.Fatal("registration accepted after start")
	}
}
