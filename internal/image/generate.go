package image

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmorgan81/fluxui/internal/request"
)

// Generation is what a Generator hands back on success. Data holds the PNG unless
// Written is set, in which case the generator already wrote it to the output path.
type Generation struct {
	Data    []byte
	Written bool
	Elapsed time.Duration
}

// Generator runs one blocking generation. output is where the image is expected to
// end up; generators that produce bytes in memory may ignore it.
type Generator interface {
	Generate(ctx context.Context, req request.Request, output string) (Generation, error)
}

// ProcessError reports a failed external generator process.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		return fmt.Sprintf("Command failed: %s", stderr)
	}
	if e.Err != nil {
		return fmt.Sprintf("Command failed: %v", e.Err)
	}
	return fmt.Sprintf("Command failed with exit code %d", e.ExitCode)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// EngineError reports a failed model load or generate call.
type EngineError struct {
	Message string
	Err     error
}

func (e *EngineError) Error() string { return e.Message }

func (e *EngineError) Unwrap() error { return e.Err }

type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
