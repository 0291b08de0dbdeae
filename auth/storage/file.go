package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/gravitational/trace"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore keeps the whole user → credentials mapping in a single JSON
// document and rewrites it atomically on every mutation.
type FileStore struct {
	filename string

	mu      sync.Mutex // serializes mutations and saves
	records map[string]Credentials
}

// NewFileStore reads the persisted mapping from filename. A missing file
// yields an empty store rather than an error.
func NewFileStore(filename string) (*FileStore, error) {
	s := &FileStore{
		filename: filename,
		records:  make(map[string]Credentials),
	}

	payload, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return s, nil
	} else if err != nil {
		return nil, trace.Wrap(err)
	}

	if err := json.Unmarshal(payload, &s.records); err != nil {
		return nil, trace.Wrap(err, "failed to parse credential store %q", filename)
	}

	return s, nil
}

// Get returns the credentials of a single user.
func (s *FileStore) Get(_ context.Context, userID string) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, ok := s.records[userID]
	if !ok {
		return nil, trace.NotFound("no credentials stored for user %q", userID)
	}
	return &creds, nil
}

// Upsert replaces the user's record and persists the whole mapping before
// returning.
func (s *FileStore) Upsert(_ context.Context, userID string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.records[userID]
	s.records[userID] = creds

	if err := s.save(); err != nil {
		// Keep the in-memory view consistent with what is on disk.
		if existed {
			s.records[userID] = previous
		} else {
			delete(s.records, userID)
		}
		return trace.Wrap(err)
	}
	return nil
}

// All returns a snapshot copy of every record.
func (s *FileStore) All(_ context.Context) (map[string]Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]Credentials, len(s.records))
	for userID, creds := range s.records {
		snapshot[userID] = creds
	}
	return snapshot, nil
}

// save writes the mapping to a temporary file and moves it into place, so a
// reader never observes a half-written document.
func (s *FileStore) save() error {
	payload, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.filename), filepath.Base(s.filename)+".tmp-*")
	if err != nil {
		return trace.Wrap(err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return trace.Wrap(err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return trace.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return trace.Wrap(err)
	}

	return trace.Wrap(os.Rename(tmp.Name(), s.filename))
}
