package index

import "sort"

// Result is a single nearest-neighbor hit: the row's metadata position and
// its similarity score.
type Result struct {
	Row   int
	Score float64
}

// Search ranks every row of snap against query by dot product and returns the
// top k. Both sides are unit-normalized by the caller, so the dot product is
// cosine similarity. k is clamped to [1, rows]; a zero-row snapshot returns
// an empty result, never an error.
//
// This is a full linear scan on purpose: corpora are single-user file trees
// (thousands of chunks, not billions), and a scan over a flat float32 slice
// beats the constant factors and rebuild cost of an approximate index at that
// scale while staying exact and dependency-free.
func Search(snap *Snapshot, query []float32, k int) []Result {
	rows := snap.Rows()
	if rows == 0 || len(query) != snap.Dims {
		return []Result{}
	}
	if k < 1 {
		k = 1
	}
	if k > rows {
		k = rows
	}

	results := make([]Result, rows)
	for i := 0; i < rows; i++ {
		row := snap.Row(i)
		var dot float64
		for j := range row {
			dot += float64(row[j]) * float64(query[j])
		}
		results[i] = Result{Row: i, Score: dot}
	}
	// Descending by score; ties broken by ascending row for determinism.
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Row < results[b].Row
	})
	return results[:k]
}
