package mapstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/graceworks/missionsync/pkg/metrics"
)

// Kind selects which mapping table an operation targets.
type Kind string

const (
	KindEvent       Kind = "event"
	KindConstituent Kind = "constituent"
)

// Store persists platform-ID to CRM-ID mappings as pretty-printed JSON
// files, one file per kind. Every Put writes through to disk so an
// interrupted run loses at most the record in flight. Files stay
// hand-editable on purpose; operators fix bad mappings with a text editor.
type Store struct {
	mu     sync.Mutex
	files  map[Kind]string
	tables map[Kind]map[string]string
	logger *slog.Logger
}

// Open loads both mapping files, creating empty tables for files that do
// not exist yet. A file that exists but does not parse is an error; wiping
// the mappings would re-create every record downstream.
func Open(eventFile, constituentFile string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		files: map[Kind]string{
			KindEvent:       eventFile,
			KindConstituent: constituentFile,
		},
		tables: make(map[Kind]map[string]string, 2),
		logger: logger.With("component", "mapstore"),
	}
	for kind, path := range s.files {
		table, err := loadTable(path)
		if err != nil {
			return nil, fmt.Errorf("load %s mappings from %s: %w", kind, path, err)
		}
		s.tables[kind] = table
		metrics.MappingEntries.WithLabelValues(string(kind)).Set(float64(len(table)))
		s.logger.Info("Mapping table loaded", "kind", kind, "path", path, "entries", len(table))
	}
	return s, nil
}

// Get returns the CRM ID mapped to a platform ID.
func (s *Store) Get(kind Kind, sourceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tables[kind][sourceID]
	return id, ok
}

// Put records a mapping and writes the table to disk before returning.
func (s *Store) Put(kind Kind, sourceID, destID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.tables[kind]
	table[sourceID] = destID
	if err := saveTable(s.files[kind], table); err != nil {
		return fmt.Errorf("persist %s mapping %s: %w", kind, sourceID, err)
	}
	metrics.MappingEntries.WithLabelValues(string(kind)).Set(float64(len(table)))
	s.logger.Debug("Mapping stored", "kind", kind, "source_id", sourceID, "dest_id", destID)
	return nil
}

// ReverseLookup finds the platform ID mapped to a CRM ID. Linear scan;
// the tables are small and this only runs on the reporting paths.
func (s *Store) ReverseLookup(kind Kind, destID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for src, dst := range s.tables[kind] {
		if dst == destID {
			return src, true
		}
	}
	return "", false
}

// Len returns the number of entries in a table.
func (s *Store) Len(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[kind])
}

func loadTable(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}
	table := make(map[string]string)
	if len(data) == 0 {
		return table, nil
	}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	return table, nil
}

// saveTable writes via a temp file and rename so a crash mid-write never
// leaves a truncated table behind.
func saveTable(path string, table map[string]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mapping-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
