package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmelnik/spotcore/pkg/core/engine"
)

// FileJournal appends one line per executed trade to a plain file. It is an
// operational convenience for tailing and grepping; the pebble batch commit
// is the durable record.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintln(j.f, line)
}

func (j *FileJournal) Close() error { return j.f.Close() }

var _ engine.Journal = (*FileJournal)(nil)
