package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/stackboot/internal/retry"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Interval: time.Millisecond}
}

func TestRun_StepsExecuteInOrder(t *testing.T) {
	var order []string
	p := New(zerolog.Nop(), []string{"db", "index"})

	steps := []Step{
		{
			Name:      "createSchema",
			DependsOn: "db",
			Policy:    fastPolicy(3),
			Action: func(context.Context) error {
				order = append(order, "createSchema")
				return nil
			},
		},
		{
			Name:      "createCollection",
			DependsOn: "index",
			Policy:    fastPolicy(3),
			Action: func(context.Context) error {
				order = append(order, "createCollection")
				return nil
			},
		},
	}

	if err := p.Run(context.Background(), steps); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(order) != 2 || order[0] != "createSchema" || order[1] != "createCollection" {
		t.Fatalf("unexpected execution order: %v", order)
	}
}

func TestRun_FailedStepAbortsBeforeLaterSteps(t *testing.T) {
	laterRan := false
	p := New(zerolog.Nop(), []string{"db", "index"})

	steps := []Step{
		{
			Name:      "createSchema",
			DependsOn: "db",
			Policy:    fastPolicy(2),
			Action: func(context.Context) error {
				return errors.New("permission denied")
			},
		},
		{
			Name:      "createCollection",
			DependsOn: "index",
			Policy:    fastPolicy(2),
			Action: func(context.Context) error {
				laterRan = true
				return nil
			},
		},
	}

	err := p.Run(context.Background(), steps)

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if stepErr.Step != "createSchema" {
		t.Errorf("StepError.Step = %q, want %q", stepErr.Step, "createSchema")
	}
	if stepErr.Err == nil || stepErr.Err.Error() != "permission denied" {
		t.Errorf("StepError.Err = %v, want last underlying error", stepErr.Err)
	}
	if laterRan {
		t.Fatalf("later step ran after an earlier step failed")
	}
}

func TestRun_StepRetriedUpToBudget(t *testing.T) {
	calls := 0
	p := New(zerolog.Nop(), []string{"index"})

	steps := []Step{{
		Name:      "createCollection",
		DependsOn: "index",
		Policy:    fastPolicy(5),
		Action: func(context.Context) error {
			calls++
			if calls < 4 {
				return errors.New("index warming up")
			}
			return nil
		},
	}}

	if err := p.Run(context.Background(), steps); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
}

func TestRun_StepWithUnconfirmedDependencyNeverRuns(t *testing.T) {
	ran := false
	p := New(zerolog.Nop(), []string{"db"})

	steps := []Step{{
		Name:      "createCollection",
		DependsOn: "index",
		Policy:    fastPolicy(3),
		Action: func(context.Context) error {
			ran = true
			return nil
		},
	}}

	err := p.Run(context.Background(), steps)

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if ran {
		t.Fatalf("step ran without its dependency being confirmed")
	}
}

func TestRun_OptionalStepFailureDoesNotAbort(t *testing.T) {
	laterRan := false
	p := New(zerolog.Nop(), []string{"cache", "index"})

	steps := []Step{
		{
			Name:      "verifyCache",
			DependsOn: "cache",
			Policy:    fastPolicy(2),
			Optional:  true,
			Action: func(context.Context) error {
				return errors.New("redis unavailable")
			},
		},
		{
			Name:      "createCollection",
			DependsOn: "index",
			Policy:    fastPolicy(2),
			Action: func(context.Context) error {
				laterRan = true
				return nil
			},
		},
	}

	if err := p.Run(context.Background(), steps); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !laterRan {
		t.Fatalf("pipeline stopped after an optional step failure")
	}
}

func TestRun_CanceledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	laterRan := false
	p := New(zerolog.Nop(), []string{"db", "index"})

	steps := []Step{
		{
			Name:      "createSchema",
			DependsOn: "db",
			Policy:    fastPolicy(3),
			Action: func(context.Context) error {
				cancel()
				return nil
			},
		},
		{
			Name:      "createCollection",
			DependsOn: "index",
			Policy:    fastPolicy(3),
			Action: func(context.Context) error {
				laterRan = true
				return nil
			},
		},
	}

	err := p.Run(ctx, steps)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if laterRan {
		t.Fatalf("step ran after cancellation")
	}
}

func TestRun_IdempotentActionSafeToRepeat(t *testing.T) {
	created := false
	createIfAbsent := func(context.Context) error {
		// Second invocation observes existing state and does nothing.
		created = true
		return nil
	}

	p := New(zerolog.Nop(), []string{"index"})
	step := Step{Name: "createCollection", DependsOn: "index", Policy: fastPolicy(3), Action: createIfAbsent}

	if err := p.Run(context.Background(), []Step{step}); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	if err := p.Run(context.Background(), []Step{step}); err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if !created {
		t.Fatalf("action never ran")
	}
}
