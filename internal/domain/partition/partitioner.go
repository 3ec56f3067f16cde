// Package partition splits raw job data into chunks of items.
package partition

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/transform"
)

// MaxRecordSize is the largest record accepted as a successful item. Larger records
// become FAILURE items so one oversized line does not fail the whole job.
const MaxRecordSize = 1 << 20

// Summary totals one partitioning run.
type Summary struct {
	Chunks int
	Items  int
	Failed int
}

// EmitFunc receives each chunk in order. An error stops partitioning.
type EmitFunc func(chunk model.PartitionedChunk) error

// Partitioner splits data according to a job specification.
type Partitioner struct {
	format      model.DataFormat
	charset     string
	chunkSize   int
	sequenceKey string
}

// New returns a Partitioner for spec.
func New(spec model.JobSpecification) (*Partitioner, error) {
	if !spec.Format.Valid() {
		return nil, fmt.Errorf("invalid format %q", spec.Format)
	}
	return &Partitioner{
		format:      spec.Format,
		charset:     spec.Charset,
		chunkSize:   spec.EffectiveChunkSize(),
		sequenceKey: spec.SequenceKey,
	}, nil
}

// Partition reads r to the end and emits chunks for jobID. Records are stored as UTF-8.
func (p *Partitioner) Partition(jobID int64, r io.Reader, emit EmitFunc) (Summary, error) {
	decoded, err := transform.NewUTF8Reader(r, p.charset)
	if err != nil {
		return Summary{}, err
	}
	b := &builder{p: p, jobID: jobID, emit: emit}
	switch p.format {
	case model.FormatLines:
		err = splitLines(decoded, b.add)
	case model.FormatJSONArray:
		err = splitJSONArray(decoded, b.add)
	}
	if err != nil {
		return b.summary, err
	}
	if err := b.flush(); err != nil {
		return b.summary, err
	}
	return b.summary, nil
}

type builder struct {
	p       *Partitioner
	jobID   int64
	emit    EmitFunc
	items   []model.Item
	keys    []string
	seen    map[string]struct{}
	summary Summary
}

func (b *builder) add(record []byte) error {
	itemID := len(b.items)
	outcome := &model.Outcome{ItemID: itemID, Status: model.ItemSuccess, Encoding: transform.OutputEncoding}
	if len(record) > MaxRecordSize {
		outcome.Status = model.ItemFailure
		outcome.Diagnostic = fmt.Sprintf("record of %d bytes exceeds %d", len(record), MaxRecordSize)
		b.summary.Failed++
	} else {
		outcome.Data = append([]byte(nil), record...)
		b.sequenceKey(record)
	}
	b.items = append(b.items, model.Item{
		JobID:               b.jobID,
		ChunkID:             b.summary.Chunks,
		ItemID:              itemID,
		PartitioningOutcome: outcome,
	})
	b.summary.Items++
	if len(b.items) >= b.p.chunkSize {
		return b.flush()
	}
	return nil
}

func (b *builder) sequenceKey(record []byte) {
	if b.p.sequenceKey == "" {
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(record, &doc); err != nil {
		return
	}
	v, ok := doc[b.p.sequenceKey]
	if !ok || v == nil {
		return
	}
	var key string
	switch t := v.(type) {
	case string:
		key = t
	case float64:
		key = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		raw, _ := json.Marshal(t)
		key = string(raw)
	}
	if b.seen == nil {
		b.seen = make(map[string]struct{})
	}
	if _, dup := b.seen[key]; dup {
		return
	}
	b.seen[key] = struct{}{}
	b.keys = append(b.keys, key)
}

func (b *builder) flush() error {
	if len(b.items) == 0 {
		return nil
	}
	chunk := model.PartitionedChunk{
		Chunk: model.Chunk{
			JobID:         b.jobID,
			ChunkID:       b.summary.Chunks,
			NumberOfItems: len(b.items),
			SequenceKeys:  b.keys,
		},
		Items: b.items,
	}
	b.items, b.keys, b.seen = nil, nil, nil
	b.summary.Chunks++
	return b.emit(chunk)
}

func splitLines(r io.Reader, add func([]byte) error) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			record := bytes.TrimRight(line, "\r\n")
			if len(bytes.TrimSpace(record)) > 0 {
				if addErr := add(record); addErr != nil {
					return addErr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read lines: %w", err)
		}
	}
}

func splitJSONArray(r io.Reader, add func([]byte) error) error {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read json array: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return errors.New("json-array data must start with '['")
	}
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode array element: %w", err)
		}
		if err := add(raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read json array end: %w", err)
	}
	return nil
}
