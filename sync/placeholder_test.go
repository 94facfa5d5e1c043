package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPlaceholderPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{".placeholder", true},
		{"a/.placeholder", true},
		{"a/b/.placeholder", true},
		{"a/placeholder", false},
		{"a/x.placeholder", false},
		{"a/b.txt", false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, IsPlaceholderPath(tt.path), "IsPlaceholderPath(%q)", tt.path)
	}
}

func TestFolderMarkerRoundTrip(t *testing.T) {
	for _, folder := range []string{"a", "a/b", "a/b/c"} {
		assert.Equal(t, folder, FolderOf(PlaceholderFor(folder)))
	}
}

func TestAncestorFolders(t *testing.T) {
	assert.Equal(t, []string{"a", "a/b", "a/b/c"}, AncestorFolders("a/b/c"))
	assert.Equal(t, []string{"a"}, AncestorFolders("a"))
	assert.Empty(t, AncestorFolders(""))
	assert.Empty(t, AncestorFolders(".")) // path.Dir of a root-level file
}

func TestBuildPlan_segregatesMarkers(t *testing.T) {
	actions := ActionSet{
		Create: map[string]Object{
			"docs/readme.txt":        {Path: "docs/readme.txt", Size: 4, ModTime: ts(100)},
			"empty/dir/.placeholder": {Path: "empty/dir/.placeholder", Placeholder: true},
		},
		Update: map[string]ObjectPair{
			"kept/.placeholder": {
				Source: Object{Path: "kept/.placeholder", Placeholder: true, ModTime: ts(300)},
				Target: Object{Path: "kept/.placeholder", Placeholder: true, ModTime: ts(100)},
			},
		},
		Delete: map[string]Object{
			"gone/file.txt":     {Path: "gone/file.txt", Size: 2},
			"gone/.placeholder": {Path: "gone/.placeholder", Placeholder: true},
		},
	}

	source := []Object{
		{Path: "docs/readme.txt", Size: 4, ModTime: ts(100)},
		{Path: "empty/dir/.placeholder", Placeholder: true},
		{Path: "kept/.placeholder", Placeholder: true, ModTime: ts(300)},
	}
	plan := BuildPlan(actions, source)

	// Markers never appear as content transfers.
	assert.Contains(t, plan.Create, "docs/readme.txt")
	assert.NotContains(t, plan.Create, "empty/dir/.placeholder")
	assert.Empty(t, plan.Update) // marker metadata drift needs no work
	assert.Equal(t, map[string]Object{"gone/file.txt": {Path: "gone/file.txt", Size: 2}}, plan.Delete)
	assert.Equal(t, []string{"gone/.placeholder"}, plan.MarkerDeletes)

	// Folder hierarchy includes the marker's folder, its ancestors, and
	// the parents of created content, parents first.
	assert.Equal(t, []string{"docs", "empty", "empty/dir"}, plan.Folders)
}

func TestBuildPlan_rootLevelFileNeedsNoFolders(t *testing.T) {
	actions := ActionSet{
		Create: map[string]Object{
			"a.txt": {Path: "a.txt", Size: 5, ModTime: ts(100)},
		},
	}

	plan := BuildPlan(actions, []Object{{Path: "a.txt", Size: 5, ModTime: ts(100)}})

	assert.Contains(t, plan.Create, "a.txt")
	assert.Empty(t, plan.Folders)
}

func TestBuildPlan_markerDeletesDeepestFirst(t *testing.T) {
	actions := ActionSet{
		Delete: map[string]Object{
			"a/.placeholder":     {Path: "a/.placeholder", Placeholder: true},
			"a/b/c/.placeholder": {Path: "a/b/c/.placeholder", Placeholder: true},
			"a/b/.placeholder":   {Path: "a/b/.placeholder", Placeholder: true},
		},
	}

	plan := BuildPlan(actions, nil)

	assert.Equal(t, []string{"a/b/c/.placeholder", "a/b/.placeholder", "a/.placeholder"}, plan.MarkerDeletes)
}

func TestBuildPlan_keepsMarkerWhoseFolderIsLiveInSource(t *testing.T) {
	actions := ActionSet{
		Delete: map[string]Object{
			"folder/.placeholder": {Path: "folder/.placeholder", Placeholder: true},
			"gone/.placeholder":   {Path: "gone/.placeholder", Placeholder: true},
		},
	}
	source := []Object{{Path: "folder/child.txt", Size: 1, ModTime: ts(100)}}

	plan := BuildPlan(actions, source)

	assert.Equal(t, []string{"gone/.placeholder"}, plan.MarkerDeletes)
}

func TestMarkerSafeToDelete(t *testing.T) {
	target := []Object{
		{Path: "folder/child.txt", Size: 1},
		{Path: "folder/.placeholder", Placeholder: true},
		{Path: "other/file.txt", Size: 1},
	}

	// Live child: unsafe.
	assert.False(t, MarkerSafeToDelete("folder/.placeholder", target, nil))

	// Child removed this run: safe.
	removed := map[string]bool{"folder/child.txt": true}
	assert.True(t, MarkerSafeToDelete("folder/.placeholder", target, removed))

	// Unrelated content never blocks.
	assert.True(t, MarkerSafeToDelete("empty/.placeholder", target, nil))
}

func TestEnsureFolderPath_createsAncestorsParentsFirst(t *testing.T) {
	tgt := newMockTarget()

	err := EnsureFolderPath(context.Background(), tgt, "level1/level2/level3")
	require.NoError(t, err)
	assert.Equal(t, []string{"level1", "level1/level2", "level1/level2/level3"}, tgt.ensureCalls)

	// Re-requesting the hierarchy is a no-op, not an error.
	err = EnsureFolderPath(context.Background(), tgt, "level1/level2/level3")
	require.NoError(t, err)
	assert.Len(t, tgt.objects, 3)
}

func TestCleanMarkers(t *testing.T) {
	tgt := newMockTarget()
	tgt.objects["folder1/.placeholder"] = mockObject{placeholder: true}
	tgt.objects["folder2/.placeholder"] = mockObject{placeholder: true}
	tgt.objects["docs/folder3/.placeholder"] = mockObject{placeholder: true}
	tgt.objects["regular.txt"] = mockObject{data: []byte("content"), modTime: ts(100)}

	removed, err := CleanMarkers(context.Background(), tgt, "", false)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Len(t, tgt.objects, 1)
	assert.Contains(t, tgt.objects, "regular.txt")
}

func TestCleanMarkers_dryRun(t *testing.T) {
	tgt := newMockTarget()
	tgt.objects["folder/.placeholder"] = mockObject{placeholder: true}

	removed, err := CleanMarkers(context.Background(), tgt, "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, tgt.objects, 1)
}

func TestCleanMarkers_keepsGoingAfterFailedDelete(t *testing.T) {
	tgt := newMockTarget()
	tgt.objects["locked/.placeholder"] = mockObject{placeholder: true}
	tgt.objects["ok/.placeholder"] = mockObject{placeholder: true}
	tgt.failDelete["locked/.placeholder"] = errors.New("access denied")

	removed, err := CleanMarkers(context.Background(), tgt, "", false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked/.placeholder")
	assert.Equal(t, 1, removed)
	assert.NotContains(t, tgt.objects, "ok/.placeholder")
	assert.Contains(t, tgt.objects, "locked/.placeholder")
}

func TestCleanMarkers_prefix(t *testing.T) {
	tgt := newMockTarget()
	tgt.objects["docs/a/.placeholder"] = mockObject{placeholder: true}
	tgt.objects["docs/b/.placeholder"] = mockObject{placeholder: true}
	tgt.objects["other/c/.placeholder"] = mockObject{placeholder: true}

	removed, err := CleanMarkers(context.Background(), tgt, "docs/", false)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Contains(t, tgt.objects, "other/c/.placeholder")
}
