// Package request turns raw form values into an immutable generation request.
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type Model string

const (
	// ModelSchnell is the fast variant.
	ModelSchnell Model = "schnell"
	// ModelDev is the quality variant. It is the only model that takes a guidance scale.
	ModelDev Model = "dev"
)

var Models = []Model{ModelSchnell, ModelDev}

const (
	MinSteps = 2
	MaxSteps = 25

	MinGuidance     = 1.0
	MaxGuidance     = 10.0
	GuidanceStep    = 0.5
	DefaultGuidance = 3.5

	MinSeed     = 0
	MaxSeed     = 999999999
	DefaultSeed = 42

	DefaultResolution = 1024
)

var (
	Quantizations = []int{4, 8}
	Resolutions   = []int{512, 768, 1024}
)

var (
	ErrEmptyPrompt      = errors.New("empty prompt")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Input holds raw, unvalidated form values. Empty fields take their defaults.
type Input struct {
	Model      string `json:"model,omitempty"`
	Quantize   string `json:"quantize,omitempty"`
	Steps      string `json:"steps,omitempty"`
	Guidance   string `json:"guidance,omitempty"`
	Seed       string `json:"seed,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
}

// UnmarshalJSON accepts each field as a string or a number, so API and Lambda
// callers can send the same shape Request marshals to.
func (in *Input) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	fields := map[string]*string{
		"model":      &in.Model,
		"quantize":   &in.Quantize,
		"steps":      &in.Steps,
		"guidance":   &in.Guidance,
		"seed":       &in.Seed,
		"resolution": &in.Resolution,
		"prompt":     &in.Prompt,
	}
	for key, value := range raw {
		dst, ok := fields[strings.ToLower(key)]
		if !ok {
			continue
		}
		v, err := scalar(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidParameter, key, err)
		}
		*dst = v
	}
	return nil
}

func scalar(value json.RawMessage) (string, error) {
	value = bytes.TrimSpace(value)
	switch {
	case bytes.Equal(value, []byte("null")):
		return "", nil
	case len(value) > 0 && value[0] == '"':
		var s string
		err := json.Unmarshal(value, &s)
		return s, err
	default:
		var n json.Number
		if err := json.Unmarshal(value, &n); err != nil {
			return "", fmt.Errorf("want string or number, got %s", value)
		}
		return n.String(), nil
	}
}

// Request is a validated generation request. Guidance is set iff Model is ModelDev.
type Request struct {
	Model      Model    `json:"model"`
	Quantize   *int     `json:"quantize,omitempty"`
	Steps      int      `json:"steps"`
	Guidance   *float64 `json:"guidance,omitempty"`
	Seed       int      `json:"seed"`
	Resolution int      `json:"resolution"`
	Prompt     string   `json:"prompt"`
}

func DefaultSteps(m Model) int {
	return lo.Ternary(m == ModelDev, 20, 4)
}

func ParseModel(s string) (Model, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModelSchnell, nil
	}
	if m := Model(s); lo.Contains(Models, m) {
		return m, nil
	}
	return "", fmt.Errorf("%w: model %q", ErrInvalidParameter, s)
}

func ParseQuantize(s string) (*int, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "-bit")
	if s == "" || s == "none" {
		return nil, nil
	}
	q, err := strconv.Atoi(s)
	if err != nil || !lo.Contains(Quantizations, q) {
		return nil, fmt.Errorf("%w: quantize %q", ErrInvalidParameter, s)
	}
	return &q, nil
}

// Collect validates in and applies defaults and range constraints. Out-of-range numbers
// are clamped like a slider would, resolutions snap to the nearest supported value.
func Collect(in Input) (Request, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return Request{}, ErrEmptyPrompt
	}

	model, err := ParseModel(in.Model)
	if err != nil {
		return Request{}, err
	}

	quantize, err := ParseQuantize(in.Quantize)
	if err != nil {
		return Request{}, err
	}

	steps, err := parseInt("steps", in.Steps, DefaultSteps(model))
	if err != nil {
		return Request{}, err
	}

	seed, err := parseInt("seed", in.Seed, DefaultSeed)
	if err != nil {
		return Request{}, err
	}

	resolution, err := parseInt("resolution", in.Resolution, DefaultResolution)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		Model:      model,
		Quantize:   quantize,
		Steps:      lo.Clamp(steps, MinSteps, MaxSteps),
		Seed:       lo.Clamp(seed, MinSeed, MaxSeed),
		Resolution: nearestResolution(resolution),
		Prompt:     prompt,
	}

	if model == ModelDev {
		guidance := DefaultGuidance
		if s := strings.TrimSpace(in.Guidance); s != "" {
			if guidance, err = strconv.ParseFloat(s, 64); err != nil || math.IsNaN(guidance) {
				return Request{}, fmt.Errorf("%w: guidance %q", ErrInvalidParameter, s)
			}
		}
		guidance = math.Round(lo.Clamp(guidance, MinGuidance, MaxGuidance)/GuidanceStep) * GuidanceStep
		req.Guidance = &guidance
	}

	return req, nil
}

func parseInt(name, s string, fallback int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidParameter, name, s)
	}
	return v, nil
}

func nearestResolution(r int) int {
	return lo.MinBy(Resolutions, func(a, b int) bool {
		return abs(a-r) < abs(b-r)
	})
}

func abs(v int) int {
	return lo.Ternary(v < 0, -v, v)
}

// QuantizeLabel renders the quantization the way the form shows it.
func (r Request) QuantizeLabel() string {
	if r.Quantize == nil {
		return "None"
	}
	return fmt.Sprintf("%d-bit", *r.Quantize)
}

// Metadata flattens the request for object metadata and logs.
func (r Request) Metadata() map[string]string {
	m := map[string]string{
		"model":      string(r.Model),
		"prompt":     r.Prompt,
		"seed":       strconv.Itoa(r.Seed),
		"steps":      strconv.Itoa(r.Steps),
		"resolution": strconv.Itoa(r.Resolution),
	}
	if r.Quantize != nil {
		m["quantize"] = strconv.Itoa(*r.Quantize)
	}
	if r.Guidance != nil {
		m["guidance"] = FormatGuidance(*r.Guidance)
	}
	return m
}

// FormatGuidance always keeps one decimal, so 4 is rendered as "4.0".
func FormatGuidance(g float64) string {
	return strconv.FormatFloat(g, 'f', 1, 64)
}
