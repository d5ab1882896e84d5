package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"conversion-relay/internal/event"
)

// FileStore persists failed events as a JSON array in a single file,
// the server-side counterpart of the browser's local-storage queue.
// The emitter is the only writer, so last-writer-wins semantics on the
// file are acceptable; the mutex only guards against the emitter's own
// drain ticker racing a Track call.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Append(_ context.Context, fe event.FailedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.read()
	if err != nil {
		return err
	}
	return s.write(append(events, fe))
}

func (s *FileStore) Load(_ context.Context) ([]event.FailedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) Replace(_ context.Context, events []event.FailedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(events)
}

func (s *FileStore) read() ([]event.FailedEvent, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []event.FailedEvent{}, nil
		}
		return nil, fmt.Errorf("failed to read failed-event file: %w", err)
	}

	var events []event.FailedEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode failed-event file: %w", err)
	}
	return events, nil
}

func (s *FileStore) write(events []event.FailedEvent) error {
	if events == nil {
		events = []event.FailedEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode failed events: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write failed-event file: %w", err)
	}
	return nil
}
