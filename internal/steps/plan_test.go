package steps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

type recordingRegistrar struct {
	specs  []domain.TaskSpec
	bodies []domain.Executable
	failOn domain.TaskID
}

func (r *recordingRegistrar) RegisterTask(spec domain.TaskSpec, body domain.Executable) error {
	if spec.ID == r.failOn {
		return errors.New("duplicate")
	}
	r.specs = append(r.specs, spec)
	r.bodies = append(r.bodies, body)
	return nil
}

func samplePlan() *domain.Plan {
	return &domain.Plan{
		Name: "nightly",
		Vars: map[string]any{"table": "orders"},
		Defaults: &domain.PlanDefaults{
			TimeoutMs: 500,
			Priority:  "high",
		},
		Tasks: []domain.PlanTask{
			{
				ID:   "extract",
				Type: "transform",
				Config: map[string]any{
					"mappings": map[string]any{"source": "{{ .Vars.table }}"},
				},
			},
			{
				ID:        "load",
				Type:      "delay",
				DependsOn: []string{"extract"},
				Priority:  "low",
				Config:    map[string]any{"duration_ms": 1},
			},
		},
	}
}

func TestBuildPlan(t *testing.T) {
	planned, err := DefaultRegistry().BuildPlan(samplePlan())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(planned) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(planned))
	}

	extract := planned[0]
	if extract.Spec.Priority != domain.PriorityHigh {
		t.Errorf("expected default priority high, got %v", extract.Spec.Priority)
	}
	if extract.Spec.Timeout != 500*time.Millisecond {
		t.Errorf("expected 500ms timeout, got %v", extract.Spec.Timeout)
	}

	out := extract.Body.Execute(context.Background())
	if out.Err != nil {
		t.Fatalf("unexpected failure: %v", out.Err)
	}
	if got := out.Output.(map[string]any)["source"]; got != "orders" {
		t.Errorf("expected rendered var, got %v", got)
	}

	load := planned[1]
	if load.Spec.Priority != domain.PriorityLow {
		t.Errorf("expected low priority, got %v", load.Spec.Priority)
	}
	if len(load.Spec.DependsOn) != 1 || load.Spec.DependsOn[0] != "extract" {
		t.Errorf("unexpected dependencies: %v", load.Spec.DependsOn)
	}
}

func TestBuildPlan_UnknownType(t *testing.T) {
	plan := samplePlan()
	plan.Tasks[1].Type = "ssh"

	_, err := DefaultRegistry().BuildPlan(plan)
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}
}

func TestRegisterPlan(t *testing.T) {
	target := &recordingRegistrar{}

	n, err := DefaultRegistry().RegisterPlan(samplePlan(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || len(target.specs) != 2 {
		t.Errorf("expected 2 registered tasks, got %d", n)
	}

	target = &recordingRegistrar{failOn: "load"}
	n, err = DefaultRegistry().RegisterPlan(samplePlan(), target)
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 1 {
		t.Errorf("expected 1 task registered before failure, got %d", n)
	}
}
