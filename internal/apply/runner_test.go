package apply

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/subwatch/subwatch/internal/model"
)

// ScriptedApplier fails jobs whose ID is in failIDs, succeeds otherwise.
type ScriptedApplier struct {
	calls    atomic.Int32
	failIDs  map[string]bool
	lastDry  atomic.Bool
}

func (a *ScriptedApplier) Apply(_ context.Context, job model.JobRecord, _ *model.SessionBundle, dryRun bool) (model.ApplyOutcome, error) {
	a.calls.Add(1)
	a.lastDry.Store(dryRun)
	if dryRun {
		return model.ApplyOutcome{Job: job, Status: model.ApplySkipped, Message: "dry run"}, nil
	}
	if a.failIDs[job.ID] {
		return model.ApplyOutcome{Job: job, Status: model.ApplyFailed, Message: "portal returned 500"},
			errors.New("portal returned 500")
	}
	return model.ApplyOutcome{Job: job, Status: model.ApplySuccess, Message: "accepted"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBundle() *model.SessionBundle {
	return &model.SessionBundle{Token: "t", ObtainedAt: time.Now(), TTL: time.Hour}
}

func jobs(ids ...string) []model.JobRecord {
	out := make([]model.JobRecord, len(ids))
	for i, id := range ids {
		out[i] = model.JobRecord{ID: id, Title: "Sub " + id}
	}
	return out
}

func TestRunAggregatesOutcomes(t *testing.T) {
	a := &ScriptedApplier{failIDs: map[string]bool{"j2": true}}
	r := NewRunner(a, false, 0, discardLogger())

	outcomes, totals := r.Run(context.Background(), jobs("j1", "j2", "j3"), testBundle())
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if totals.Success != 2 || totals.Failed != 1 || totals.Skipped != 0 {
		t.Errorf("totals = %+v, want 2 success, 1 failed", totals)
	}
	// One failure must not stop the batch.
	if got := a.calls.Load(); got != 3 {
		t.Errorf("Apply() calls = %d, want 3", got)
	}
}

func TestRunDryRunPassesFlagThrough(t *testing.T) {
	a := &ScriptedApplier{}
	r := NewRunner(a, true, 0, discardLogger())

	_, totals := r.Run(context.Background(), jobs("j1"), testBundle())
	if !a.lastDry.Load() {
		t.Error("Apply() dryRun = false, want true")
	}
	if totals.Skipped != 1 {
		t.Errorf("totals = %+v, want 1 skipped", totals)
	}
}

func TestRunRespectsPerCycleCap(t *testing.T) {
	a := &ScriptedApplier{}
	r := NewRunner(a, false, 2, discardLogger())

	outcomes, totals := r.Run(context.Background(), jobs("j1", "j2", "j3", "j4"), testBundle())
	if got := a.calls.Load(); got != 2 {
		t.Errorf("Apply() calls = %d, want 2 (cap)", got)
	}
	if totals.Success != 2 || totals.Skipped != 2 {
		t.Errorf("totals = %+v, want 2 success, 2 skipped", totals)
	}
	if len(outcomes) != 4 {
		t.Errorf("outcomes = %d, want 4 (capped jobs still reported)", len(outcomes))
	}
	if outcomes[2].Status != model.ApplySkipped || outcomes[3].Status != model.ApplySkipped {
		t.Errorf("capped outcomes = %v/%v, want skipped", outcomes[2].Status, outcomes[3].Status)
	}
}

func TestRunDryRunHonorsPerCycleCap(t *testing.T) {
	// The dry-run preview must reach the cap exactly like a live run would,
	// so it reports what --live would actually submit.
	a := &ScriptedApplier{}
	r := NewRunner(a, true, 2, discardLogger())

	outcomes, totals := r.Run(context.Background(), jobs("j1", "j2", "j3", "j4"), testBundle())
	if got := a.calls.Load(); got != 2 {
		t.Errorf("Apply() calls = %d, want 2 (cap applies in dry run)", got)
	}
	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(outcomes))
	}
	if totals.Skipped != 4 {
		t.Errorf("totals = %+v, want 4 skipped (2 dry-run, 2 capped)", totals)
	}
	if outcomes[2].Message != "per-cycle application cap reached" {
		t.Errorf("outcomes[2].Message = %q, want cap message", outcomes[2].Message)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a := &ScriptedApplier{}
	r := NewRunner(a, false, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, _ := r.Run(ctx, jobs("j1", "j2"), testBundle())
	if len(outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0 after cancellation", len(outcomes))
	}
}
