package harvester

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/target/dataio-go/internal/domain/model"
)

// Pulled summarizes one pull from a source.
type Pulled struct {
	Files   int
	Records int
	// Cursor is the publication date the next pull starts from.
	Cursor time.Time
}

// Source is an upstream the harvester pulls records from. since is the harvester's
// next publication date; nil means everything is new.
type Source interface {
	HasNewData(ctx context.Context, since *time.Time) (bool, error)
	Pull(ctx context.Context, since *time.Time, format model.DataFormat, w io.Writer) (Pulled, error)
}

// FileDropSource harvests files dropped into a directory. A file is new when it was
// modified at or after the cursor.
type FileDropSource struct {
	Dir     string
	Pattern string // glob matched against file names; empty matches all
}

type droppedFile struct {
	path    string
	modTime time.Time
}

func (s *FileDropSource) newFiles(since *time.Time) ([]droppedFile, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read drop directory %s: %w", s.Dir, err)
	}
	var files []droppedFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if s.Pattern != "" {
			ok, err := filepath.Match(s.Pattern, entry.Name())
			if err != nil {
				return nil, fmt.Errorf("match %q: %w", s.Pattern, err)
			}
			if !ok {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if since != nil && info.ModTime().Before(*since) {
			continue
		}
		files = append(files, droppedFile{path: filepath.Join(s.Dir, entry.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	return files, nil
}

// HasNewData reports whether any matching file is at or after since.
func (s *FileDropSource) HasNewData(_ context.Context, since *time.Time) (bool, error) {
	files, err := s.newFiles(since)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// Pull writes the records of every new file to w in format, oldest file first.
func (s *FileDropSource) Pull(ctx context.Context, since *time.Time, format model.DataFormat, w io.Writer) (Pulled, error) {
	files, err := s.newFiles(since)
	if err != nil {
		return Pulled{}, err
	}
	var out Pulled
	if since != nil {
		out.Cursor = *since
	}
	var arr *arrayWriter
	if format == model.FormatJSONArray {
		arr = &arrayWriter{w: w}
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return out, fmt.Errorf("read %s: %w", f.path, err)
		}
		var n int
		switch format {
		case model.FormatJSONArray:
			n, err = arr.append(data)
		case model.FormatLines:
			n, err = copyLines(w, data)
		default:
			return out, fmt.Errorf("unsupported format %q", format)
		}
		if err != nil {
			return out, fmt.Errorf("pull %s: %w", f.path, err)
		}
		out.Files++
		out.Records += n
		// Strictly after the newest pulled file.
		out.Cursor = f.modTime.Add(time.Nanosecond)
	}
	if arr != nil {
		if err := arr.close(); err != nil {
			return out, err
		}
	}
	return out, nil
}

func copyLines(w io.Writer, data []byte) (int, error) {
	n := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if _, err := w.Write(line); err != nil {
			return n, err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return n, err
		}
		n++
	}
	return n, scanner.Err()
}

// arrayWriter merges several JSON arrays into one.
type arrayWriter struct {
	w       io.Writer
	started bool
}

func (a *arrayWriter) append(data []byte) (int, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("decode json array: %w", err)
	}
	for _, rec := range records {
		sep := ","
		if !a.started {
			sep = "["
			a.started = true
		}
		if _, err := io.WriteString(a.w, sep); err != nil {
			return 0, err
		}
		if _, err := a.w.Write(rec); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (a *arrayWriter) close() error {
	closing := "]"
	if !a.started {
		closing = "[]"
	}
	_, err := io.WriteString(a.w, closing)
	return err
}
