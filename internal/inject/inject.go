package inject

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/fluxui/internal/config"
	"github.com/dmorgan81/fluxui/internal/engine"
	"github.com/dmorgan81/fluxui/internal/feed"
	"github.com/dmorgan81/fluxui/internal/handler"
	"github.com/dmorgan81/fluxui/internal/image"
	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/dmorgan81/fluxui/internal/metrics"
	"github.com/dmorgan81/fluxui/internal/page"
	"github.com/dmorgan81/fluxui/internal/param"
	"github.com/dmorgan81/fluxui/internal/prompt"
	"github.com/dmorgan81/fluxui/internal/result"
	"github.com/dmorgan81/fluxui/internal/store"
	"github.com/dmorgan81/fluxui/internal/web"
	"github.com/samber/do"
)

// Setup registers every component. Providers are lazy, so AWS clients are only built
// when a parameter source, bucket or distribution needs them.
func Setup(ctx context.Context, cfg *config.Config) *do.Injector {
	logger := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.ProvideValue[*config.Config](injector, cfg)
	do.ProvideValue[*slog.Logger](injector, logger)

	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, http.DefaultClient)

	if cfg.ParamSource == config.ParamSourceSSM {
		do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)
	} else {
		do.ProvideValue[param.Fetcher](injector, param.EnvFetcher{})
	}

	do.ProvideNamedValue[string](injector, "addr", cfg.Addr)
	do.ProvideNamedValue[string](injector, "output_dir", cfg.OutputDir)
	do.ProvideNamedValue[string](injector, "command", cfg.Command)
	do.ProvideNamedValue[string](injector, "engine_url", cfg.EngineURL)
	do.ProvideNamedValue[string](injector, "bucket", cfg.Bucket)
	do.ProvideNamedValue[string](injector, "distribution", cfg.Distribution)
	do.ProvideNamed[string](injector, "engine_token", func(i *do.Injector) (string, error) {
		return do.MustInvoke[param.Fetcher](i).Fetch(ctx, cfg.EngineTokenParam)
	})
	do.ProvideNamed[[]string](injector, "prompts", func(i *do.Injector) ([]string, error) {
		return do.MustInvoke[param.Fetcher](i).FetchAll(ctx, cfg.PromptsParam)
	})

	do.Provide[engine.Engine](injector, engine.NewRunner)
	do.Provide[image.Generator](injector, func(i *do.Injector) (image.Generator, error) {
		if cfg.Dispatcher == config.DispatcherEngine {
			return image.NewEngineGenerator(i)
		}
		return image.NewProcessGenerator(i)
	})

	do.Provide[*store.FileUploader](injector, store.NewFileUploader)
	do.Provide[store.Uploader](injector, store.NewS3Uploader)
	do.Provide[store.Invalidator](injector, store.NewCloudFrontInvalidator)
	do.Provide[*store.Publisher](injector, func(i *do.Injector) (*store.Publisher, error) {
		p := &store.Publisher{}
		if cfg.Bucket != "" {
			p.Uploader = do.MustInvoke[store.Uploader](i)
		}
		if cfg.Distribution != "" {
			p.Invalidator = do.MustInvoke[store.Invalidator](i)
		}
		return p, nil
	})

	do.Provide[*metrics.Recorder](injector, metrics.NewRecorder)
	do.Provide[*result.Handler](injector, result.NewHandler)
	do.Provide[*prompt.Randomizer](injector, prompt.NewRandomizer)
	do.Provide[*page.Templator](injector, page.NewTemplator)
	do.Provide[*feed.Generator](injector, feed.NewGenerator)
	do.Provide[*handler.Handler](injector, handler.NewHandler)
	do.Provide[*web.Server](injector, web.NewServer)

	return injector
}
