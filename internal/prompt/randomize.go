package prompt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/go-logr/logr"
	"github.com/samber/do"
	"github.com/samber/lo"
)

// Defaults are used when no prompts are configured. Each entry is "model|prompt".
var Defaults = []string{
	"schnell|a red fox curled up in fresh snow, morning light",
	"schnell|a lighthouse on a cliff during a thunderstorm, oil painting",
	"dev|a tabby kitten wearing a tiny knitted scarf, studio portrait",
	"dev|an isometric cutaway of a cozy bookshop, warm evening colors",
}

var ErrNoPrompts = errors.New("no prompts configured")

type Suggestion struct {
	Model  request.Model `json:"model"`
	Prompt string        `json:"prompt"`
}

type Randomizer struct {
	prompts []Suggestion
	mu      sync.Mutex
	rnd     *rand.Rand
}

func NewRandomizer(i *do.Injector) (*Randomizer, error) {
	prompts := do.MustInvokeNamed[[]string](i, "prompts")
	return NewRandomizerWith(lo.Ternary(len(prompts) > 0, prompts, Defaults), time.Now().UTC().Unix())
}

// NewRandomizerWith parses "model|prompt" lines. A line without a model uses schnell.
func NewRandomizerWith(lines []string, seed int64) (*Randomizer, error) {
	var prompts []Suggestion
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		model, text, ok := strings.Cut(line, "|")
		if !ok {
			model, text = "", line
		}
		m, err := request.ParseModel(model)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", line, err)
		}
		prompts = append(prompts, Suggestion{Model: m, Prompt: strings.TrimSpace(text)})
	}
	return &Randomizer{prompts: prompts, rnd: rand.New(rand.NewSource(seed))}, nil
}

func (r *Randomizer) Randomize(ctx context.Context) (Suggestion, error) {
	log := logr.FromContextOrDiscard(ctx).WithName("randomizer")
	log.Info("getting random model and prompt")
	if len(r.prompts) == 0 {
		return Suggestion{}, ErrNoPrompts
	}
	r.mu.Lock()
	idx := r.rnd.Intn(len(r.prompts))
	r.mu.Unlock()
	return r.prompts[idx], nil
}
