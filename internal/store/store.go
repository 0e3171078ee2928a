// File: internal/store/store.go

// Package store persists the small key/value state the automation needs
// between runs: session cookies, auth token, last results, and the
// diagnostic log history. Backing is a single JSON file written
// atomically, so a crash never leaves a half-written state behind.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Well-known keys.
const (
	KeySessionData       = "sessionData"
	KeyAuthToken         = "authToken"
	KeyAuthExpiry        = "authExpiry"
	KeySimulationResult  = "simulationResult"
	KeySimulationSummary = "simulationSummary"
	KeyLogHistory        = "logHistory"
)

// maxLogHistory bounds the append-only log so the state file cannot grow
// without limit.
const maxLogHistory = 2000

// Store is a concurrency-safe JSON-file key/value store.
type Store struct {
	logger *zap.Logger
	path   string

	mu   sync.RWMutex
	data map[string]jsoniter.RawMessage
}

// LogRecord is one entry of the diagnostic log history.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// Open loads the state file, creating an empty store when it does not
// exist yet. A corrupt file is renamed aside rather than silently wiped.
func Open(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		logger: logger.Named("store"),
		path:   path,
		data:   make(map[string]jsoniter.RawMessage),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		backup := path + ".corrupt"
		if renameErr := os.Rename(path, backup); renameErr == nil {
			s.logger.Warn("State file was corrupt, moved aside.",
				zap.String("backup", backup), zap.Error(err))
			s.data = make(map[string]jsoniter.RawMessage)
			return s, nil
		}
		return nil, fmt.Errorf("state file %s is corrupt: %w", path, err)
	}
	return s, nil
}

// Get decodes the value stored under key into out. The second return is
// false when the key is absent.
func (s *Store) Get(key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decoding stored %s: %w", key, err)
	}
	return true, nil
}

// Set stores a value under key and flushes to disk.
func (s *Store) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return s.flushLocked()
}

// Delete removes keys and flushes.
func (s *Store) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return s.flushLocked()
}

// AppendLog adds a record to the bounded log history.
func (s *Store) AppendLog(source, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.readLogLocked()
	history = append(history, LogRecord{
		Timestamp: time.Now().UTC(),
		Source:    source,
		Message:   message,
	})
	if len(history) > maxLogHistory {
		history = history[len(history)-maxLogHistory:]
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding log history: %w", err)
	}
	s.data[KeyLogHistory] = raw
	return s.flushLocked()
}

// LogHistory returns the validated log records, skipping malformed ones.
func (s *Store) LogHistory() []LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readLogLocked()
}

func (s *Store) readLogLocked() []LogRecord {
	raw, ok := s.data[KeyLogHistory]
	if !ok {
		return nil
	}
	var loose []jsoniter.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		s.logger.Warn("Log history is malformed, discarding.", zap.Error(err))
		return nil
	}
	out := make([]LogRecord, 0, len(loose))
	for _, item := range loose {
		var rec LogRecord
		if err := json.Unmarshal(item, &rec); err != nil || rec.Message == "" {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// flushLocked writes the state atomically: temp file in the same
// directory, then rename.
func (s *Store) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
