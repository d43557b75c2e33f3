// Package marketdata implements range-chunked, parallel access to market
// and base-factor data, plus resolution of custom-factor series via the
// persisted-table fast path or on-demand computation (C1).
package marketdata

import (
	"time"

	"github.com/aristath/factorlab/internal/domain"
)

// DateChunk is a contiguous, inclusive [Start, End] window of YYYYMMDD
// dates, at most chunkMonths wide.
type DateChunk struct {
	Start string
	End   string
}

const dateLayout = "20060102"
const defaultChunkMonths = 3

// ChunkDateRange splits [start, end] into contiguous, non-overlapping,
// roughly chunkMonths-wide windows whose union covers the whole range. If
// start == end, a single one-day chunk is returned. chunkMonths <= 0 uses
// the default of 3.
func ChunkDateRange(start, end string, chunkMonths int) ([]DateChunk, error) {
	if chunkMonths <= 0 {
		chunkMonths = defaultChunkMonths
	}

	startT, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, err
	}
	endT, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, err
	}

	if start == end {
		return []DateChunk{{Start: start, End: end}}, nil
	}

	var chunks []DateChunk
	cursor := startT
	for !cursor.After(endT) {
		chunkEnd := cursor.AddDate(0, chunkMonths, 0).AddDate(0, 0, -1)
		if chunkEnd.After(endT) {
			chunkEnd = endT
		}
		chunks = append(chunks, DateChunk{
			Start: cursor.Format(dateLayout),
			End:   chunkEnd.Format(dateLayout),
		})
		cursor = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks, nil
}

// EstimatedRowSize returns the heuristic per-row byte estimate used to size
// a read batch: len(fields)*20, or 200 bytes if fields is unspecified.
func EstimatedRowSize(fields []string) int {
	if len(fields) == 0 {
		return 200
	}
	return len(fields) * 20
}

// BatchSize returns the row-count batch size targeting roughly 10MiB per
// batch, clamped to [2000, 10000].
func BatchSize(fields []string) int {
	const targetBytes = 10 * 1024 * 1024
	const minBatch = 2000
	const maxBatch = 10000

	rowSize := EstimatedRowSize(fields)
	target := targetBytes / rowSize
	if target < minBatch {
		target = minBatch
	}
	if target > maxBatch {
		target = maxBatch
	}
	return target
}

// matchesST reports whether a market point's display name looks like a
// special-treatment (ST) security; used by include_st=false filtering.
func matchesST(p domain.MarketPoint) bool {
	name := p.Name
	for i := 0; i+1 < len(name); i++ {
		if (name[i] == 'S' || name[i] == 's') && (name[i+1] == 'T' || name[i+1] == 't') {
			return true
		}
	}
	return false
}
