package extract

import (
	"errors"
	"fmt"
)

type Status string

const (
	// Snapshot written
	StatusOK Status = "ok"
	// Steam answered but had nothing for us, no snapshot written
	StatusEmpty Status = "empty"
	// Request or decode failed, no snapshot written
	StatusFailed Status = "failed"
)

var ErrCursorStalled = errors.New("catalog cursor did not advance")

// Result is the outcome of one extractor. Err is only set for StatusFailed.
type Result struct {
	Status   Status
	Path     string
	Count    int
	Checksum uint64
	Err      error
}

func ok(path string, count int, checksum uint64) Result {
	return Result{Status: StatusOK, Path: path, Count: count, Checksum: checksum}
}

func empty() Result {
	return Result{Status: StatusEmpty}
}

func failed(format string, args ...any) Result {
	return Result{Status: StatusFailed, Err: fmt.Errorf(format, args...)}
}

func (r Result) String() string {
	switch r.Status {
	case StatusOK:
		return fmt.Sprintf("ok (%d records at %s)", r.Count, r.Path)
	case StatusFailed:
		return fmt.Sprintf("failed: %v", r.Err)
	default:
		return string(r.Status)
	}
}
