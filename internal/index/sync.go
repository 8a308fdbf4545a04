package index

import (
	"errors"
	"maps"
	"slices"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/storage"
)

// Checksums returns the content checksum of each corpus file, keyed by path.
func Checksums(store storage.Provider, paths ...string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		meta, err := store.Stat(p)
		if err != nil {
			return nil, err
		}
		out[p] = meta.Checksum
	}
	return out, nil
}

// Changed lists, sorted, the paths whose checksum differs between prev and cur,
// including paths present in only one of them.
func Changed(prev, cur map[string]string) []string {
	var out []string
	for p, sum := range cur {
		if prev[p] != sum {
			out = append(out, p)
		}
	}
	for p := range prev {
		if _, ok := cur[p]; !ok {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// Unchanged reports whether the files recorded for the latest build still have the same
// content, which lets a restart skip a rebuild. An empty build history counts as changed.
func Unchanged(db *DB, store storage.Provider, paths ...string) (bool, error) {
	latest, err := db.LatestBuild()
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	cur, err := Checksums(store, paths...)
	if err != nil {
		return false, err
	}
	return maps.Equal(latest.Checksums, cur), nil
}
