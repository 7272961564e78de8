package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Sink persists finished test results keyed by test ID. Implementations
// must be safe for concurrent use.
type Sink interface {
	Store(ctx context.Context, id string, data []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}

// FileSink writes each result as <dir>/<id>.json.
type FileSink struct {
	dir string
}

// NewFileSink creates the directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sink dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileSink) Store(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Write-then-rename keeps readers from seeing partial results.
	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write result %s: %w", id, err)
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize result %s: %w", id, err)
	}
	return nil
}

func (s *FileSink) Load(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("load result %s: %w", id, err)
	}
	return data, nil
}

func (s *FileSink) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// MemorySink keeps results in memory, mainly for tests.
type MemorySink struct {
	mu      sync.RWMutex
	results map[string][]byte
}

func NewMemorySink() *MemorySink {
	return &MemorySink{results: make(map[string][]byte)}
}

func (s *MemorySink) Store(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.results[id] = cp
	return nil
}

func (s *MemorySink) Load(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.results[id]
	if !ok {
		return nil, fmt.Errorf("result %s not found", id)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemorySink) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.results))
	for id := range s.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
