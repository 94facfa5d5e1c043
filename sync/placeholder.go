package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
)

// Plan is an ActionSet split for execution: content transfers on one side,
// folder marker maintenance on the other, so a marker is never treated as a
// content object needing a byte copy.
type Plan struct {
	Create map[string]Object     // content creates
	Update map[string]ObjectPair // content updates
	Delete map[string]Object     // content deletes

	// Folders lists every folder that must exist before content is
	// written: folders whose markers appeared in the create set, plus
	// the ancestors of every created content path. Lexical order, so
	// parents always precede children.
	Folders []string

	// MarkerDeletes lists marker paths whose folders left the source.
	// They are removed last, and only once nothing non-placeholder
	// remains beneath them.
	MarkerDeletes []string

	// markerFolders marks the Folders entries that came from classifier
	// create entries. Only those count toward the created total.
	markerFolders map[string]bool
}

// BuildPlan segregates marker entries out of an ActionSet and computes the
// folder hierarchy to pre-create. The source listing decides which marker
// deletes are real: a marker whose folder still holds source content is not
// an orphan and stays put, keeping repeat runs quiet.
func BuildPlan(actions ActionSet, source []Object) *Plan {
	plan := &Plan{
		Create:        make(map[string]Object, len(actions.Create)),
		Update:        make(map[string]ObjectPair, len(actions.Update)),
		Delete:        make(map[string]Object, len(actions.Delete)),
		markerFolders: make(map[string]bool),
	}

	folders := make(map[string]bool)
	for p, o := range actions.Create {
		if o.Placeholder || IsPlaceholderPath(p) {
			folder := FolderOf(p)
			plan.markerFolders[folder] = true
			for _, f := range AncestorFolders(folder) {
				folders[f] = true
			}
			continue
		}
		plan.Create[p] = o
		for _, f := range AncestorFolders(path.Dir(p)) {
			folders[f] = true
		}
	}
	plan.Folders = make([]string, 0, len(folders))
	for f := range folders {
		plan.Folders = append(plan.Folders, f)
	}
	sort.Strings(plan.Folders)

	for p, pair := range actions.Update {
		if pair.Source.Placeholder || IsPlaceholderPath(p) {
			// A marker differing only in metadata needs no work.
			continue
		}
		plan.Update[p] = pair
	}

	live := liveSourceFolders(source)
	for p, o := range actions.Delete {
		if o.Placeholder || IsPlaceholderPath(p) {
			if !live[FolderOf(p)] {
				plan.MarkerDeletes = append(plan.MarkerDeletes, p)
			}
			continue
		}
		plan.Delete[p] = o
	}
	// Deepest markers first, so nested empty folders unwind bottom-up.
	sort.Sort(sort.Reverse(sort.StringSlice(plan.MarkerDeletes)))

	return plan
}

// liveSourceFolders collects every folder the source still occupies.
func liveSourceFolders(source []Object) map[string]bool {
	live := make(map[string]bool)
	for _, o := range source {
		folder := path.Dir(o.Path)
		if o.Placeholder || IsPlaceholderPath(o.Path) {
			folder = FolderOf(o.Path)
		}
		for _, f := range AncestorFolders(folder) {
			live[f] = true
		}
	}
	return live
}

// MarkerSafeToDelete reports whether the folder behind marker holds no live
// content: every non-placeholder target object beneath it must appear in
// removed (deleted this run or confirmed absent).
func MarkerSafeToDelete(marker string, target []Object, removed map[string]bool) bool {
	folder := FolderOf(marker)
	if folder == "" {
		return true
	}
	under := folder + "/"
	for _, o := range target {
		if o.Placeholder || !strings.HasPrefix(o.Path, under) {
			continue
		}
		if !removed[o.Path] {
			return false
		}
	}
	return true
}

// EnsureFolderPath creates the marker for folder and every ancestor, parents
// first. Re-running it against an existing hierarchy is a no-op.
func EnsureFolderPath(ctx context.Context, target Target, folder string) error {
	for _, f := range AncestorFolders(folder) {
		if err := target.EnsureFolder(ctx, f); err != nil {
			return fmt.Errorf("ensure folder %s: %w", f, err)
		}
	}
	return nil
}

// CleanMarkers removes folder marker objects from the target, optionally
// restricted to a prefix. With dryRun it only counts what would go. A failed
// delete is logged and the sweep keeps going; the count covers what actually
// went, and the joined failures come back as the error.
func CleanMarkers(ctx context.Context, target Target, prefix string, dryRun bool) (int, error) {
	list, err := target.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list target: %w", err)
	}

	removed := 0
	var errs []error
	for _, o := range list {
		if !o.Placeholder && !IsPlaceholderPath(o.Path) {
			continue
		}
		if !dryRun {
			if err := target.Delete(ctx, o.Path); err != nil {
				slog.Warn("delete marker failed", "marker", o.Path, "error", err)
				errs = append(errs, fmt.Errorf("delete marker %s: %w", o.Path, err))
				continue
			}
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
