package sync

import (
	"sort"
	"strings"
	"time"
)

// PlaceholderName is the file name of the zero-byte marker objects that keep
// otherwise-empty folders visible in flat blob listings.
const PlaceholderName = ".placeholder"

// Object identifies one syncable unit within a listing.
type Object struct {
	// Path is slash-separated and relative to the sync root. It is the
	// unique key within a listing.
	Path    string
	Size    int64
	ModTime time.Time
	// Placeholder marks folder marker objects. They participate in
	// classification but are never byte-copied.
	Placeholder bool
}

// IsPlaceholderPath reports whether path follows the folder marker convention.
func IsPlaceholderPath(path string) bool {
	return path == PlaceholderName || strings.HasSuffix(path, "/"+PlaceholderName)
}

// FolderOf returns the folder a marker path stands for:
// "a/b/.placeholder" -> "a/b".
func FolderOf(marker string) string {
	return strings.TrimSuffix(strings.TrimSuffix(marker, PlaceholderName), "/")
}

// PlaceholderFor returns the marker path for a folder: "a/b" -> "a/b/.placeholder".
func PlaceholderFor(folder string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return PlaceholderName
	}
	return folder + "/" + PlaceholderName
}

// AncestorFolders expands a folder path into itself plus every parent:
// "a/b/c" -> ["a", "a/b", "a/b/c"]. The sync root, whether spelled "" or
// "." (path.Dir of a root-level file), has no folders to create.
func AncestorFolders(folder string) []string {
	folder = strings.Trim(folder, "/")
	if folder == "" || folder == "." {
		return nil
	}
	parts := strings.Split(folder, "/")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}

// indexByPath materializes a listing for random access by the classifier.
func indexByPath(list []Object) map[string]Object {
	idx := make(map[string]Object, len(list))
	for _, o := range list {
		idx[o.Path] = o
	}
	return idx
}

// sortedPaths returns the keys of a path-keyed map in lexical order, which
// places every folder before its children.
func sortedPaths[V any](m map[string]V) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
