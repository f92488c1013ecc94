package chomplog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// RunLog is an append-only history file, adapted from the teacher's
// logs.Writer: one file per OpenRunLog call, opened for append and closed
// by Close. The CLI does not currently open one.
type RunLog struct {
	file *os.File
	id   string
}

// OpenRunLog creates (or reuses) the cache-home run-log directory and opens
// a fresh log file tagged with a random invocation id.
func OpenRunLog(cacheHome string) (*RunLog, error) {
	dir := filepath.Join(cacheHome, "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chomplog: failed to create run-log directory: %w", err)
	}

	id := uuid.New().String()
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.log", id, time.Now().Unix()))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chomplog: failed to open run log: %w", err)
	}
	return &RunLog{file: f, id: id}, nil
}

// Writer returns an io.Writer mirroring output to both stdout and the run
// log file, for use as chomplog.New's stdout argument in --watch mode.
func (r *RunLog) Writer(primary io.Writer) io.Writer {
	return io.MultiWriter(primary, r.file)
}

func (r *RunLog) Close() error {
	return r.file.Close()
}

func (r *RunLog) ID() string {
	return r.id
}
