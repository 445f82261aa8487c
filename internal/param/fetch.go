package param

import (
	"context"
	"os"
	"strings"

	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/samber/lo"
)

type Fetcher interface {
	Fetch(context.Context, string) (string, error)
	FetchAll(context.Context, string) ([]string, error)
}

// EnvFetcher reads parameters from environment variables. FetchAll splits the value
// into non-empty lines.
type EnvFetcher struct{}

func (EnvFetcher) Fetch(ctx context.Context, name string) (string, error) {
	log.FromContextOrDiscard(ctx).WithGroup("env").Debug("fetching single parameter", "name", name)
	return os.Getenv(name), nil
}

func (EnvFetcher) FetchAll(ctx context.Context, name string) ([]string, error) {
	log.FromContextOrDiscard(ctx).WithGroup("env").Debug("fetching all parameters", "name", name)
	lines := strings.Split(os.Getenv(name), "\n")
	return lo.Filter(lo.Map(lines, func(l string, _ int) string {
		return strings.TrimSpace(l)
	}), func(l string, _ int) bool {
		return l != ""
	}), nil
}
