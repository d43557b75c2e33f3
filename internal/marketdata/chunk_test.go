package marketdata_test

import (
	"testing"

	"github.com/aristath/factorlab/internal/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDateRangeSingleDay(t *testing.T) {
	chunks, err := marketdata.ChunkDateRange("20240102", "20240102", 3)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "20240102", chunks[0].Start)
	assert.Equal(t, "20240102", chunks[0].End)
}

func TestChunkDateRangeCoversWholeRangeContiguously(t *testing.T) {
	chunks, err := marketdata.ChunkDateRange("20200101", "20231231", 3)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, "20200101", chunks[0].Start)
	assert.Equal(t, "20231231", chunks[len(chunks)-1].End)

	for i := 1; i < len(chunks); i++ {
		prevEnd := chunks[i-1].End
		curStart := chunks[i].Start
		// non-overlapping and in order: curStart falls strictly after prevEnd
		assert.NotEqual(t, prevEnd, curStart)
		assert.Greater(t, curStart, prevEnd)
	}
}

func TestBatchSizeClampsToRange(t *testing.T) {
	assert.Equal(t, 10000, marketdata.BatchSize([]string{"a"}))            // tiny rows -> clamp to max
	assert.Equal(t, 2000, marketdata.BatchSize(make([]string, 1000)))      // huge rows -> clamp to min
	assert.Equal(t, 200, marketdata.EstimatedRowSize(nil))
	assert.Equal(t, 60, marketdata.EstimatedRowSize([]string{"a", "b", "c"}))
}
