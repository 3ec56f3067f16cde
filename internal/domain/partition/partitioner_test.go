package partition

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/domain/model"
)

func collect(t *testing.T, spec model.JobSpecification, data string) ([]model.PartitionedChunk, Summary) {
	t.Helper()
	p, err := New(spec)
	require.NoError(t, err)
	var chunks []model.PartitionedChunk
	sum, err := p.Partition(3, strings.NewReader(data), func(c model.PartitionedChunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	return chunks, sum
}

func TestPartition_Lines(t *testing.T) {
	spec := model.JobSpecification{Format: model.FormatLines, ChunkSize: 2}
	chunks, sum := collect(t, spec, "a\r\nb\n\n  \nc\nd\ne")

	assert.Equal(t, Summary{Chunks: 3, Items: 5}, sum)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{2, 2, 1}, []int{chunks[0].Chunk.NumberOfItems, chunks[1].Chunk.NumberOfItems, chunks[2].Chunk.NumberOfItems})
	for i, c := range chunks {
		assert.Equal(t, i, c.Chunk.ChunkID)
		assert.Equal(t, int64(3), c.Chunk.JobID)
		assert.Len(t, c.Items, c.Chunk.NumberOfItems)
		for j, it := range c.Items {
			assert.Equal(t, j, it.ItemID)
			assert.Equal(t, i, it.ChunkID)
		}
	}
	assert.Equal(t, "a", string(chunks[0].Items[0].PartitioningOutcome.Data))
	assert.Equal(t, "e", string(chunks[2].Items[0].PartitioningOutcome.Data))
}

func TestPartition_DefaultChunkSize(t *testing.T) {
	data := strings.Repeat("x\n", 25)
	chunks, sum := collect(t, model.JobSpecification{Format: model.FormatLines}, data)
	assert.Equal(t, 3, sum.Chunks)
	assert.Equal(t, model.DefaultChunkSize, chunks[0].Chunk.NumberOfItems)
	assert.Equal(t, 5, chunks[2].Chunk.NumberOfItems)
}

func TestPartition_JSONArrayWithSequenceKeys(t *testing.T) {
	spec := model.JobSpecification{Format: model.FormatJSONArray, ChunkSize: 3, SequenceKey: "isbn"}
	data := `[{"isbn":"a"},{"isbn":"b"},{"isbn":"a"},{"isbn":7},{"title":"no key"}]`
	chunks, sum := collect(t, spec, data)

	assert.Equal(t, Summary{Chunks: 2, Items: 5}, sum)
	assert.Equal(t, []string{"a", "b"}, chunks[0].Chunk.SequenceKeys)
	assert.Equal(t, []string{"7"}, chunks[1].Chunk.SequenceKeys)
	assert.JSONEq(t, `{"isbn":"b"}`, string(chunks[0].Items[1].PartitioningOutcome.Data))
}

func TestPartition_JSONArrayErrors(t *testing.T) {
	p, err := New(model.JobSpecification{Format: model.FormatJSONArray})
	require.NoError(t, err)
	noop := func(model.PartitionedChunk) error { return nil }

	_, err = p.Partition(1, strings.NewReader(`{"not":"an array"}`), noop)
	assert.Error(t, err)
	_, err = p.Partition(1, strings.NewReader(`[{"ok":1}, {broken`), noop)
	assert.Error(t, err)
}

func TestPartition_OversizedRecordFails(t *testing.T) {
	data := "small\n" + strings.Repeat("y", MaxRecordSize+1) + "\n"
	chunks, sum := collect(t, model.JobSpecification{Format: model.FormatLines}, data)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, chunks[0].Items, 2)
	assert.Equal(t, model.ItemSuccess, chunks[0].Items[0].PartitioningOutcome.Status)
	assert.Equal(t, model.ItemFailure, chunks[0].Items[1].PartitioningOutcome.Status)
	assert.Empty(t, chunks[0].Items[1].PartitioningOutcome.Data)
}

func TestPartition_Charset(t *testing.T) {
	chunks, _ := collect(t, model.JobSpecification{Format: model.FormatLines, Charset: "latin1"}, "na\xefve\n")
	assert.Equal(t, "naïve", string(chunks[0].Items[0].PartitioningOutcome.Data))
	assert.Equal(t, "UTF-8", chunks[0].Items[0].PartitioningOutcome.Encoding)
}

func TestPartition_EmitErrorStops(t *testing.T) {
	p, err := New(model.JobSpecification{Format: model.FormatLines, ChunkSize: 1})
	require.NoError(t, err)
	calls := 0
	_, err = p.Partition(1, strings.NewReader("a\nb\nc\n"), func(model.PartitionedChunk) error {
		calls++
		return errors.New("store down")
	})
	assert.ErrorContains(t, err, "store down")
	assert.Equal(t, 1, calls)

	_, err = New(model.JobSpecification{Format: "csv"})
	assert.Error(t, err)
}
