package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"

	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/samber/do"
)

// Runner talks to a model runner process that keeps weights resident between calls.
type Runner struct {
	Client  *http.Client
	BaseURL string
	Token   string
}

func NewRunner(i *do.Injector) (Engine, error) {
	return &Runner{
		Client:  do.MustInvoke[*http.Client](i),
		BaseURL: do.MustInvokeNamed[string](i, "engine_url"),
		Token:   do.MustInvokeNamed[string](i, "engine_token"),
	}, nil
}

type loadRequest struct {
	Model    string `json:"model"`
	Quantize *int   `json:"quantize,omitempty"`
}

type loadResponse struct {
	Handle string `json:"handle"`
}

type generateRequest struct {
	Handle string `json:"handle"`
	Seed   int    `json:"seed"`
	Prompt string `json:"prompt"`
	Config
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r *Runner) Load(ctx context.Context, name string, quantize *int) (Model, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("runner").With("model", name, "url", r.BaseURL)
	log.Info("loading model")

	resp, err := r.post(ctx, "/v1/models/load", loadRequest{Model: name, Quantize: quantize})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding load response: %w", err)
	}
	if out.Handle == "" {
		return nil, errors.New("runner returned no model handle")
	}

	log.Info("loaded model", "handle", out.Handle)
	return &runnerModel{runner: r, name: name, handle: out.Handle}, nil
}

func (r *Runner) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(r.BaseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorResponse
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return errors.New(body.Error)
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return fmt.Errorf("%s: %s", resp.Status, msg)
	}
	return errors.New(resp.Status)
}

type runnerModel struct {
	runner *Runner
	name   string
	handle string
}

func (m *runnerModel) Name() string { return m.name }

func (m *runnerModel) Generate(ctx context.Context, seed int, prompt string, config Config) (image.Image, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("runner").With("model", m.name, "handle", m.handle)
	log.Info("generating image via model runner")

	resp, err := m.runner.post(ctx, "/v1/images/generate", generateRequest{
		Handle: m.handle,
		Seed:   seed,
		Prompt: prompt,
		Config: config,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	img, err := png.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding generated image: %w", err)
	}
	return img, nil
}
