package system

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type recorder struct {
	name     string
	log      *[]string
	startErr error
}

func (r recorder) Name() string { return r.name }

func (r recorder) Start(context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	*r.log = append(*r.log, "start "+r.name)
	return nil
}

func (r recorder) Stop(context.Context) error {
	*r.log = append(*r.log, "stop "+r.name)
	return nil
}

func TestManager_StartStopOrder(t *testing.T) {
	var log []string
	m := NewManager()
	for _, name := range []string{"hub", "kafka", "reconciler"} {
		if err := m.Register(recorder{name: name, log: &log}); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	want := []string{"start hub", "start kafka", "start reconciler", "stop reconciler", "stop kafka", "stop hub"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestManager_RollsBackOnStartFailure(t *testing.T) {
	var log []string
	m := NewManager()
	_ = m.Register(recorder{name: "hub", log: &log})
	_ = m.Register(recorder{name: "broken", log: &log, startErr: errors.New("boom")})

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("Start() should fail")
	}
	want := []string{"start hub", "stop hub"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestManager_RegisterRules(t *testing.T) {
	m := NewManager()
	if err := m.Register(NoopService{ServiceName: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(NoopService{ServiceName: "a"}); err == nil {
		t.Error("duplicate name should be rejected")
	}
	if err := m.Register(nil); err == nil {
		t.Error("nil service should be rejected")
	}
	_ = m.Start(context.Background())
	if err := m.Register(NoopService{ServiceName: "b"}); err == nil {
		t.Error("register after start should be rejected")
	}
	if got := m.Services(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Services() = %v", got)
	}
}
