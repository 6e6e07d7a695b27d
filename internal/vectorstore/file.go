package vectorstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fieldSep = "|"

// maxLineBytes bounds one record line; a 3072-dim vector is well under 100KB of JSON.
const maxLineBytes = 4 << 20

func (s *Store) load() error {
	return s.withFileLock(func() error {
		data, err := os.ReadFile(s.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read vector store: %w", err)
		}
		info, _ := os.Stat(s.path)

		records, stats := parseRecords(data)
		switch {
		case stats.lines > 0 && len(records) == 0:
			s.logger.Warn("vector store is corrupt, starting empty", "path", s.path, "lines", stats.lines)
			return s.discardFile()
		case s.dims > 0 && stats.dims > 0 && stats.dims != s.dims:
			s.logger.Warn("vector store dimensions differ from the embedding model, starting empty",
				"path", s.path, "stored_dims", stats.dims, "configured_dims", s.dims)
			return s.discardFile()
		}
		if stats.skipped > 0 {
			s.logger.Warn("vector store lines skipped", "path", s.path, "skipped", stats.skipped)
		}

		for _, r := range records {
			if info != nil {
				r.UpdatedAt = info.ModTime()
			}
			s.records[r.Key] = append(s.records[r.Key], r)
		}
		if s.dims == 0 {
			s.dims = stats.dims
		}
		s.logger.Debug("vector store loaded", "path", s.path, "records", len(records), "projects", len(s.records))
		return nil
	})
}

func (s *Store) discardFile() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove vector store: %w", err)
	}
	return nil
}

type parseStats struct {
	lines   int
	skipped int
	dims    int
}

// parseRecords keeps the records whose vector size matches the first valid line. Later
// duplicates of a (key, searchText) pair replace earlier ones.
func parseRecords(data []byte) ([]Record, parseStats) {
	var stats parseStats
	var out []Record
	index := map[[2]string]int{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.lines++
		r, ok := parseLine(line)
		if !ok || (stats.dims > 0 && len(r.Vector) != stats.dims) {
			stats.skipped++
			continue
		}
		if stats.dims == 0 {
			stats.dims = len(r.Vector)
		}
		id := [2]string{r.Key, r.SearchText}
		if i, dup := index[id]; dup {
			out[i] = r
			continue
		}
		index[id] = len(out)
		out = append(out, r)
	}
	if sc.Err() != nil {
		// An overlong line ends the scan; whatever was read stays usable.
		stats.skipped++
	}
	return out, stats
}

func parseLine(line string) (Record, bool) {
	parts := strings.Split(line, fieldSep)
	if len(parts) != 4 || parts[0] == "" {
		return Record{}, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(parts[3]), &vec); err != nil || len(vec) == 0 {
		return Record{}, false
	}
	return Record{Key: parts[0], Name: parts[1], SearchText: parts[2], Vector: vec}, true
}

func formatLine(r Record) (string, error) {
	vec, err := json.Marshal(r.Vector)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{sanitize(r.Key), sanitize(r.Name), sanitize(r.SearchText), string(vec)}, fieldSep), nil
}

// sanitize keeps a field on one line and free of the separator.
func sanitize(s string) string {
	if !strings.ContainsAny(s, "|\r\n") {
		return s
	}
	return strings.NewReplacer("|", "/", "\r", " ", "\n", " ").Replace(s)
}

// persist writes records to a temp file next to the store and renames it into place.
func (s *Store) persist(records map[string][]Record) error {
	if s.path == "" {
		return nil
	}
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		for _, r := range records[k] {
			line, err := formatLine(r)
			if err != nil {
				return fmt.Errorf("encode record %q: %w", r.Key, err)
			}
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}

	return s.withFileLock(func() error {
		tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
		if err != nil {
			return fmt.Errorf("create temp vector store: %w", err)
		}
		tmpName := tmp.Name()
		defer func() { _ = os.Remove(tmpName) }()

		if _, err := tmp.Write(buf.Bytes()); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write vector store: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("sync vector store: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close vector store: %w", err)
		}
		if err := os.Rename(tmpName, s.path); err != nil {
			return fmt.Errorf("replace vector store: %w", err)
		}
		return nil
	})
}
