package sync

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency bounds parallel transfers. Blob stores rate-limit
	// concurrent requests, so the pool stays small by default.
	DefaultConcurrency = 8
	// DefaultOpTimeout caps every individual store call.
	DefaultOpTimeout = 5 * time.Minute
)

// Policy is the immutable configuration for one run.
type Policy struct {
	// Prefix scopes the whole run to paths starting with it.
	Prefix string
	// SkipCopy, SkipUpdates and SkipDelete make the corresponding action
	// set inert: its entries are counted as skipped and not applied.
	// Skips are rollout controls, never failures.
	SkipCopy    bool
	SkipUpdates bool
	SkipDelete  bool
	// MetadataURLBase, when set, stamps a provenance "url" metadata field
	// on every created or updated object.
	MetadataURLBase string
	Concurrency     int
	OpTimeout       time.Duration
}

func (p Policy) concurrency() int {
	if p.Concurrency > 0 {
		return p.Concurrency
	}
	return DefaultConcurrency
}

func (p Policy) opTimeout() time.Duration {
	if p.OpTimeout > 0 {
		return p.OpTimeout
	}
	return DefaultOpTimeout
}

// Failure records one per-object error. Failures never abort the run.
type Failure struct {
	Path string
	Op   string // "ensure-folder", "copy", "delete"
	Err  error
}

// Result summarizes one run. Counts are per classifier entry; Bytes is the
// content volume written to the target.
type Result struct {
	Created  int
	Updated  int
	Deleted  int
	Skipped  int
	Failures []Failure
	Bytes    int64
}

// Failed returns the number of per-object failures.
func (r *Result) Failed() int { return len(r.Failures) }

// Executor applies a plan against the target store, reading content from the
// source for creates and updates.
type Executor struct {
	source Source
	target Target
}

func NewExecutor(source Source, target Target) *Executor {
	return &Executor{source: source, target: target}
}

// Execute applies the plan best-effort and reports an aggregate result.
// targetListing is the materialized target listing the plan was classified
// against; the marker-delete safety check walks it.
func (e *Executor) Execute(ctx context.Context, plan *Plan, targetListing []Object, policy Policy) *Result {
	res := &Result{}
	e.ensureFolders(ctx, plan, policy, res)
	e.copyObjects(ctx, plan, policy, res)
	e.deleteObjects(ctx, plan, targetListing, policy, res)
	return res
}

// ensureFolders creates the plan's folder hierarchy, parents before children.
// Folder markers that were classifier create entries count as created; the
// incidental ancestors do not.
func (e *Executor) ensureFolders(ctx context.Context, plan *Plan, policy Policy, res *Result) {
	if policy.SkipCopy {
		res.Skipped += len(plan.markerFolders)
		return
	}
	for _, folder := range plan.Folders {
		err := func() error {
			opCtx, cancel := context.WithTimeout(ctx, policy.opTimeout())
			defer cancel()
			return e.target.EnsureFolder(opCtx, folder)
		}()
		if err != nil {
			slog.Warn("ensure folder failed", "folder", folder, "error", err)
			res.Failures = append(res.Failures, Failure{Path: folder, Op: "ensure-folder", Err: err})
			continue
		}
		if plan.markerFolders[folder] {
			res.Created++
		}
	}
}

type copyOp struct {
	path   string
	src    Object
	update bool
}

func (e *Executor) copyObjects(ctx context.Context, plan *Plan, policy Policy, res *Result) {
	ops := make([]copyOp, 0, len(plan.Create)+len(plan.Update))
	if policy.SkipCopy {
		res.Skipped += len(plan.Create)
	} else {
		for _, p := range sortedPaths(plan.Create) {
			ops = append(ops, copyOp{path: p, src: plan.Create[p]})
		}
	}
	if policy.SkipUpdates {
		res.Skipped += len(plan.Update)
	} else {
		for _, p := range sortedPaths(plan.Update) {
			ops = append(ops, copyOp{path: p, src: plan.Update[p].Source, update: true})
		}
	}
	if len(ops) == 0 {
		return
	}

	// Siblings are independent; only parent folders had to exist first.
	outcome := make([]error, len(ops))
	g := new(errgroup.Group)
	g.SetLimit(policy.concurrency())
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			outcome[i] = e.copyOne(ctx, op, policy)
			return nil
		})
	}
	g.Wait()

	for i, op := range ops {
		if err := outcome[i]; err != nil {
			slog.Warn("copy failed", "path", op.path, "error", err)
			res.Failures = append(res.Failures, Failure{Path: op.path, Op: "copy", Err: err})
			continue
		}
		if op.update {
			res.Updated++
		} else {
			res.Created++
		}
		res.Bytes += op.src.Size
	}
}

func (e *Executor) copyOne(ctx context.Context, op copyOp, policy Policy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, policy.opTimeout())
	defer cancel()

	r, size, err := e.source.Open(ctx, op.path)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	defer r.Close()

	var metadata map[string]string
	if policy.MetadataURLBase != "" {
		metadata = map[string]string{"url": provenanceURL(policy.MetadataURLBase, op.path)}
	}
	if err := e.target.Put(ctx, op.path, r, size, op.src.ModTime, metadata); err != nil {
		return fmt.Errorf("write target: %w", err)
	}
	return nil
}

func (e *Executor) deleteObjects(ctx context.Context, plan *Plan, targetListing []Object, policy Policy, res *Result) {
	if policy.SkipDelete {
		res.Skipped += len(plan.Delete) + len(plan.MarkerDeletes)
		return
	}

	paths := sortedPaths(plan.Delete)
	outcome := make([]error, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(policy.concurrency())
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			outcome[i] = e.deleteOne(ctx, p, policy)
			return nil
		})
	}
	g.Wait()

	removed := make(map[string]bool, len(paths))
	for i, p := range paths {
		if err := outcome[i]; err != nil {
			slog.Warn("delete failed", "path", p, "error", err)
			res.Failures = append(res.Failures, Failure{Path: p, Op: "delete", Err: err})
			continue
		}
		removed[p] = true
		res.Deleted++
	}

	// Markers go last: a folder marker is removed only once nothing real
	// is left beneath it. An unsafe delete downgrades to a warning.
	for _, marker := range plan.MarkerDeletes {
		if !MarkerSafeToDelete(marker, targetListing, removed) {
			slog.Warn("folder not empty, keeping marker", "marker", marker)
			res.Skipped++
			continue
		}
		if err := e.deleteOne(ctx, marker, policy); err != nil {
			slog.Warn("delete marker failed", "marker", marker, "error", err)
			res.Failures = append(res.Failures, Failure{Path: marker, Op: "delete", Err: err})
			continue
		}
		res.Deleted++
	}
}

func (e *Executor) deleteOne(ctx context.Context, path string, policy Policy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, policy.opTimeout())
	defer cancel()
	return e.target.Delete(ctx, path)
}

// provenanceURL joins the configured base with the percent-encoded relative
// path, keeping the slashes.
func provenanceURL(base, path string) string {
	u := url.URL{Path: path}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(u.EscapedPath(), "/")
}
