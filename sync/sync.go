package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// Syncer performs one-way reconciliation of a Source onto a Target. Each run
// is stateless: both sides are re-listed from scratch, so the design is
// self-healing against drift at O(total object count) per run.
type Syncer struct {
	source Source
	target Target
}

func New(source Source, target Target) *Syncer {
	return &Syncer{source: source, target: target}
}

// Run executes one pass: Listing, Classifying, Executing, Done. A failure to
// obtain either listing is fatal and returns before any action is attempted;
// per-object failures land in the Result instead. The caller (a scheduler,
// typically) decides whether aggregate failures warrant a retry.
func (s *Syncer) Run(ctx context.Context, policy Policy) (*Result, error) {
	srcList, err := s.source.List(ctx, policy.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list source: %w", err)
	}
	tgtList, err := s.target.List(ctx, policy.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list target: %w", err)
	}

	actions := Classify(srcList, tgtList, policy.Prefix)
	plan := BuildPlan(actions, srcList)

	slog.Info("sync plan",
		"prefix", policy.Prefix,
		"create", len(plan.Create),
		"update", len(plan.Update),
		"delete", len(plan.Delete),
		"folders", len(plan.Folders),
		"marker_deletes", len(plan.MarkerDeletes))

	res := NewExecutor(s.source, s.target).Execute(ctx, plan, tgtList, policy)

	slog.Info("sync done",
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"skipped", res.Skipped,
		"failed", res.Failed(),
		"transferred", humanize.Bytes(uint64(res.Bytes)))
	return res, nil
}
