package handler

import (
	"context"
	"errors"
	"time"

	"github.com/dmorgan81/fluxui/internal/image"
	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/dmorgan81/fluxui/internal/metrics"
	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/dmorgan81/fluxui/internal/result"
	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
)

const EmptyPromptMessage = "Please enter a prompt first!"

type Input = request.Input

// Outcome is either a Result or an Error message, never both.
type Outcome struct {
	ID      string           `json:"id"`
	Request *request.Request `json:"request,omitempty"`
	Result  *result.Result   `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (o Outcome) Success() bool {
	return o.Result != nil
}

type Handler struct {
	generator image.Generator
	results   *result.Handler
	metrics   *metrics.Recorder
	inflight  *semaphore.Weighted
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return New(
		do.MustInvoke[image.Generator](i),
		do.MustInvoke[*result.Handler](i),
		do.MustInvoke[*metrics.Recorder](i),
	), nil
}

func New(generator image.Generator, results *result.Handler, recorder *metrics.Recorder) *Handler {
	return &Handler{
		generator: generator,
		results:   results,
		metrics:   recorder,
		inflight:  semaphore.NewWeighted(1),
	}
}

// Handle is the lambda entry point. Failures are reported in the Outcome.
func (h *Handler) Handle(ctx context.Context, input Input) (Outcome, error) {
	return h.Generate(ctx, input), nil
}

// Generate collects, dispatches and stores one generation. Only one dispatch runs at
// a time; once started it is not cancelled by ctx.
func (h *Handler) Generate(ctx context.Context, input Input) Outcome {
	out := Outcome{ID: uuid.NewString()}
	logger := log.FromContextOrDiscard(ctx).With("id", out.ID)
	ctx = log.NewContext(ctx, logger)
	logger = logger.WithGroup("Handler")
	logger.Info("handling generation", "input", input)

	req, err := request.Collect(input)
	if err != nil {
		logger.Info("rejected generation", "error", err)
		h.metrics.Observe(modelLabel(input.Model), metrics.OutcomeRejected, 0)
		out.Error = Message(err)
		return out
	}
	out.Request = &req

	if err := h.inflight.Acquire(ctx, 1); err != nil {
		h.metrics.Observe(string(req.Model), metrics.OutcomeRejected, 0)
		out.Error = Message(err)
		return out
	}
	defer h.inflight.Release(1)

	ctx = context.WithoutCancel(ctx)
	res, err := h.dispatch(ctx, req)
	if err != nil {
		logger.Error("generation failed", "error", err)
		h.metrics.Observe(string(req.Model), metrics.OutcomeFailure, 0)
		out.Error = Message(err)
		return out
	}

	logger.Info("generation succeeded", "file", res.SavedPath, "elapsed", res.ElapsedSeconds)
	h.metrics.Observe(string(req.Model), metrics.OutcomeSuccess, time.Duration(res.ElapsedSeconds*float64(time.Second)))
	out.Result = res
	return out
}

// Reject reports input that could not be read at all, the same way Generate reports
// input that fails validation.
func (h *Handler) Reject(ctx context.Context, err error) Outcome {
	out := Outcome{ID: uuid.NewString(), Error: Message(err)}
	log.FromContextOrDiscard(ctx).Info("rejected unreadable input", "id", out.ID, "error", err)
	h.metrics.Observe(metrics.ModelInvalid, metrics.OutcomeRejected, 0)
	return out
}

func (h *Handler) dispatch(ctx context.Context, req request.Request) (*result.Result, error) {
	slot, err := h.results.Reserve()
	if err != nil {
		return nil, err
	}
	gen, err := h.generator.Generate(ctx, req, slot.Path)
	if err != nil {
		return nil, err
	}
	return h.results.Complete(ctx, req, slot, gen)
}

// modelLabel keeps metric labels to the known models.
func modelLabel(s string) string {
	m, err := request.ParseModel(s)
	if err != nil {
		return metrics.ModelInvalid
	}
	return string(m)
}

// Message turns any failure into the text shown to the user.
func Message(err error) string {
	return lo.Ternary(errors.Is(err, request.ErrEmptyPrompt), EmptyPromptMessage, "An error occurred: "+err.Error())
}
