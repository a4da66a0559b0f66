package storage

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/matchpipe/pkg/actors"
)

type NopWAL struct{}

func NewNopWAL() *NopWAL          { return &NopWAL{} }
func (w *NopWAL) Append(_ string) {}

// FileWAL appends one line per engine event (trade or rest). Writes are
// buffered; Close flushes and fsyncs. Append cannot fail the engine, so the
// first write error is kept and reported by Err and Close.
type FileWAL struct {
	mu    sync.Mutex
	f     *os.File
	w     *bufio.Writer
	lines int
	err   error
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f, w: bufio.NewWriter(f)}, nil
}

func (w *FileWAL) Append(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if _, err := fmt.Fprintln(w.w, line); err != nil {
		w.err = fmt.Errorf("wal append: %w", err)
		return
	}
	w.lines++
}

// Lines is the number of lines appended since open.
func (w *FileWAL) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *FileWAL) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		if err := w.w.Flush(); err != nil {
			w.err = fmt.Errorf("wal flush: %w", err)
		} else if err := w.f.Sync(); err != nil {
			w.err = fmt.Errorf("wal sync: %w", err)
		}
	}
	if err := w.f.Close(); err != nil && w.err == nil {
		w.err = err
	}
	return w.err
}

var _ actors.WAL = (*NopWAL)(nil)
var _ actors.WAL = (*FileWAL)(nil)
