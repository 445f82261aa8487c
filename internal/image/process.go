package image

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/samber/do"
)

// ProcessGenerator shells out to mflux-generate, or anything accepting the same flags.
type ProcessGenerator struct {
	Command string
}

func NewProcessGenerator(i *do.Injector) (*ProcessGenerator, error) {
	return &ProcessGenerator{Command: do.MustInvokeNamed[string](i, "command")}, nil
}

// Args builds the command line for req. Quantize and guidance are only passed when set.
func Args(req request.Request, output string) []string {
	res := strconv.Itoa(req.Resolution)
	args := []string{
		"--model", string(req.Model),
		"--prompt", req.Prompt,
		"--seed", strconv.Itoa(req.Seed),
		"--steps", strconv.Itoa(req.Steps),
		"--height", res,
		"--width", res,
	}
	if req.Quantize != nil {
		args = append(args, "--quantize", strconv.Itoa(*req.Quantize))
	}
	if req.Guidance != nil {
		args = append(args, "--guidance", request.FormatGuidance(*req.Guidance))
	}
	return append(args, "--output", output)
}

func (g *ProcessGenerator) Generate(ctx context.Context, req request.Request, output string) (Generation, error) {
	args := Args(req, output)
	log := log.FromContextOrDiscard(ctx).WithGroup("process").With("command", g.Command, "output", output)
	log.Info("generating image via external process")
	log.Debug("command line", "args", args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.Command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		// the generator may have left a partial file behind
		_ = os.Remove(output)

		perr := &ProcessError{ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		log.Warn("external process failed", "exit_code", perr.ExitCode, "stderr", perr.Stderr, "elapsed", elapsed)
		return Generation{}, perr
	}
	log.Debug("external process finished", "stdout", stdout.String())

	info, err := os.Stat(output)
	if err != nil {
		return Generation{}, &FileError{Op: "stat", Path: output, Err: err}
	}
	if info.Size() == 0 {
		_ = os.Remove(output)
		return Generation{}, &FileError{Op: "stat", Path: output, Err: errors.New("generator wrote an empty file")}
	}

	log.Info("generated image via external process", "elapsed", elapsed, "bytes", info.Size())
	return Generation{Written: true, Elapsed: elapsed}, nil
}
