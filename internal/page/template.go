package page

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"strconv"
	"sync"

	"github.com/dmorgan81/fluxui/internal/handler"
	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/go-logr/logr"
	"github.com/samber/do"
	"github.com/samber/lo"
)

//go:embed assets/index.html
var indexTmpl string

type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Params is everything the page renders: the form state and, after an action, its outcome.
type Params struct {
	Form    request.Input
	Outcome *handler.Outcome
}

type view struct {
	Params
	Models        []Option
	Quantizations []Option
	Resolutions   []Option
	Steps         string
	Guidance      string
	Seed          string
	ShowGuidance  bool
	Success       string
	MinSteps      int
	MaxSteps      int
	MaxSeed       int
}

func newView(p Params) view {
	model, err := request.ParseModel(p.Form.Model)
	if err != nil {
		model = request.ModelSchnell
	}
	quantize, err := request.ParseQuantize(p.Form.Quantize)
	if err != nil {
		quantize = nil
	}
	resolution, err := strconv.Atoi(p.Form.Resolution)
	if err != nil {
		resolution = request.DefaultResolution
	}

	v := view{
		Params: p,
		Models: lo.Map(request.Models, func(m request.Model, _ int) Option {
			return Option{Value: string(m), Label: string(m), Selected: m == model}
		}),
		Quantizations: append([]Option{{Value: "", Label: "None", Selected: quantize == nil}},
			lo.Map(request.Quantizations, func(q int, _ int) Option {
				return Option{
					Value:    strconv.Itoa(q),
					Label:    fmt.Sprintf("%d-bit", q),
					Selected: quantize != nil && *quantize == q,
				}
			})...),
		Resolutions: lo.Map(request.Resolutions, func(r int, _ int) Option {
			return Option{Value: strconv.Itoa(r), Label: strconv.Itoa(r), Selected: r == resolution}
		}),
		Steps:        lo.Ternary(p.Form.Steps != "", p.Form.Steps, strconv.Itoa(request.DefaultSteps(model))),
		Guidance:     lo.Ternary(p.Form.Guidance != "", p.Form.Guidance, request.FormatGuidance(request.DefaultGuidance)),
		Seed:         lo.Ternary(p.Form.Seed != "", p.Form.Seed, strconv.Itoa(request.DefaultSeed)),
		ShowGuidance: model == request.ModelDev,
		MinSteps:     request.MinSteps,
		MaxSteps:     request.MaxSteps,
		MaxSeed:      request.MaxSeed,
	}
	if p.Outcome != nil && p.Outcome.Success() {
		v.Success = fmt.Sprintf("Image generated in %.2f seconds!", p.Outcome.Result.ElapsedSeconds)
	}
	return v
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(*do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

func (g *Templator) Template(ctx context.Context, params Params) ([]byte, error) {
	g.once.Do(func() {
		g.tmpl = template.Must(template.New("index").Parse(indexTmpl))
	})

	log := logr.FromContextOrDiscard(ctx).WithName("templator")
	log.Info("generating page")

	var data bytes.Buffer
	if err := g.tmpl.Execute(&data, newView(params)); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}
