package inject

import (
	"context"
	"testing"

	"github.com/dmorgan81/fluxui/internal/config"
	"github.com/dmorgan81/fluxui/internal/handler"
	"github.com/dmorgan81/fluxui/internal/image"
	"github.com/dmorgan81/fluxui/internal/prompt"
	"github.com/dmorgan81/fluxui/internal/store"
	"github.com/dmorgan81/fluxui/internal/web"
	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Addr:             "127.0.0.1:0",
		OutputDir:        t.TempDir(),
		Dispatcher:       config.DispatcherProcess,
		Command:          "mflux-generate",
		EngineURL:        "http://127.0.0.1:7860",
		ParamSource:      config.ParamSourceEnv,
		EngineTokenParam: "FLUXUI_TEST_ENGINE_TOKEN",
		PromptsParam:     "FLUXUI_TEST_PROMPTS",
	}
}

func TestSetupProcess(t *testing.T) {
	injector := Setup(context.Background(), testConfig(t))
	defer func() { _ = injector.Shutdown() }()

	g := do.MustInvoke[image.Generator](injector)
	assert.IsType(t, &image.ProcessGenerator{}, g)
	assert.Equal(t, "mflux-generate", g.(*image.ProcessGenerator).Command)

	_, err := do.Invoke[*web.Server](injector)
	require.NoError(t, err)
	_, err = do.Invoke[*handler.Handler](injector)
	require.NoError(t, err)
	assert.False(t, do.MustInvoke[*store.Publisher](injector).Enabled())
}

func TestSetupEngine(t *testing.T) {
	t.Setenv("FLUXUI_TEST_ENGINE_TOKEN", "secret")
	cfg := testConfig(t)
	cfg.Dispatcher = config.DispatcherEngine
	injector := Setup(context.Background(), cfg)

	assert.IsType(t, &image.EngineGenerator{}, do.MustInvoke[image.Generator](injector))
	assert.Equal(t, "secret", do.MustInvokeNamed[string](injector, "engine_token"))
}

func TestSetupPrompts(t *testing.T) {
	t.Setenv("FLUXUI_TEST_PROMPTS", "dev|a red fox")
	injector := Setup(context.Background(), testConfig(t))

	s, err := do.MustInvoke[*prompt.Randomizer](injector).Randomize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a red fox", s.Prompt)
}
