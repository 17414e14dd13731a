package upload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio/v2"
)

// StateFile is the name of the durable uploaded-set inside the record
// directory. The leading dot keeps it out of segment listings.
const StateFile = ".upload_state.json"

// maxRetries caps upload attempts per file; beyond it the file is skipped
// until the next process restart.
const maxRetries = 3

// State is the durable record of which segments have been uploaded, plus
// the in-memory retry ledger. On disk it is a sorted JSON array of absolute
// paths, rewritten atomically, so operators can inspect and edit it.
type State struct {
	mu       sync.Mutex
	path     string
	uploaded map[string]struct{}
	retries  map[string]int
}

// LoadState reads the uploaded set from recordDir, tolerating a missing or
// corrupt file by starting empty.
func LoadState(recordDir string) *State {
	s := &State{
		path:     filepath.Join(recordDir, StateFile),
		uploaded: make(map[string]struct{}),
		retries:  make(map[string]int),
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return s
	}
	var paths []string
	if err := json.Unmarshal(raw, &paths); err != nil {
		return s
	}
	for _, p := range paths {
		s.uploaded[p] = struct{}{}
	}
	return s
}

// Save rewrites the state file atomically.
func (s *State) Save() error {
	s.mu.Lock()
	paths := make([]string, 0, len(s.uploaded))
	for p := range s.uploaded {
		paths = append(paths, p)
	}
	s.mu.Unlock()
	sort.Strings(paths)

	raw, err := json.Marshal(paths)
	if err != nil {
		return fmt.Errorf("upload: encode state: %w", err)
	}
	if err := renameio.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("upload: persist state: %w", err)
	}
	return nil
}

// IsUploaded reports whether path has been uploaded.
func (s *State) IsUploaded(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.uploaded[path]
	return ok
}

// MarkUploaded records a successful upload and clears any retry debt.
func (s *State) MarkUploaded(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[path] = struct{}{}
	delete(s.retries, path)
}

// Forget removes a deleted file from the uploaded set.
func (s *State) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploaded, path)
	delete(s.retries, path)
}

// RecordFailure increments the retry counter and returns the new count.
func (s *State) RecordFailure(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[path]++
	return s.retries[path]
}

// Exhausted reports whether path has burned through its retry budget.
func (s *State) Exhausted(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries[path] >= maxRetries
}

// Len returns the number of uploaded entries.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploaded)
}
