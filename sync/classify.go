package sync

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// ObjectPair holds both sides of a path present in source and target.
type ObjectPair struct {
	Source Object
	Target Object
}

// ActionSet is the classifier's output: three pairwise-disjoint mappings
// from path to the objects involved. Paths in neither set are unchanged.
type ActionSet struct {
	Create map[string]Object     // present in source, absent in target
	Update map[string]ObjectPair // present in both, source newer or different
	Delete map[string]Object     // present in target, absent in source
}

// Empty reports whether the run has nothing to do.
func (a ActionSet) Empty() bool {
	return len(a.Create) == 0 && len(a.Update) == 0 && len(a.Delete) == 0
}

// Classify partitions two listings into create, update and delete sets.
//
// Both listings are first filtered to paths starting with prefix (empty
// prefix keeps everything); out-of-scope paths are invisible to the rest of
// the run and are never deleted. A path present on both sides is an update
// iff the sizes differ or the source is strictly newer. That is a metadata
// heuristic, not a content hash: a rewrite with identical size and an
// equal-or-older timestamp goes undetected.
func Classify(source, target []Object, prefix string) ActionSet {
	src := indexByPath(filterPrefix(source, prefix))
	tgt := indexByPath(filterPrefix(target, prefix))

	srcPaths := mapset.NewThreadUnsafeSet[string]()
	for p := range src {
		srcPaths.Add(p)
	}
	tgtPaths := mapset.NewThreadUnsafeSet[string]()
	for p := range tgt {
		tgtPaths.Add(p)
	}

	actions := ActionSet{
		Create: make(map[string]Object),
		Update: make(map[string]ObjectPair),
		Delete: make(map[string]Object),
	}
	for _, p := range srcPaths.Difference(tgtPaths).ToSlice() {
		actions.Create[p] = src[p]
	}
	for _, p := range tgtPaths.Difference(srcPaths).ToSlice() {
		actions.Delete[p] = tgt[p]
	}
	for _, p := range srcPaths.Intersect(tgtPaths).ToSlice() {
		if changed(src[p], tgt[p]) {
			actions.Update[p] = ObjectPair{Source: src[p], Target: tgt[p]}
		}
	}
	return actions
}

func changed(src, tgt Object) bool {
	return src.Size != tgt.Size || src.ModTime.After(tgt.ModTime)
}

func filterPrefix(list []Object, prefix string) []Object {
	if prefix == "" {
		return list
	}
	out := make([]Object, 0, len(list))
	for _, o := range list {
		if strings.HasPrefix(o.Path, prefix) {
			out = append(out, o)
		}
	}
	return out
}
