package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/fluxui/internal/config"
	"github.com/dmorgan81/fluxui/internal/handler"
	"github.com/dmorgan81/fluxui/internal/inject"
	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/dmorgan81/fluxui/internal/web"
	"github.com/samber/do"
	"github.com/spf13/cobra"
)

type setupFunc func(context.Context, *config.Config) *do.Injector

// NewCLI builds the command tree. Settings come from the environment, flags override them.
func NewCLI() *cobra.Command {
	return newCLI(inject.Setup)
}

func newCLI(setup setupFunc) *cobra.Command {
	var (
		dispatcher string
		outputDir  string
	)

	root := &cobra.Command{
		Use:   "fluxui",
		Short: "AI Image Generator UI",
		Long: `AI Image Generator UI

Collects generation settings in a web form, runs mflux-generate (or a model runner)
and shows the result with a download button.

Usage: fluxui serve
This will start the web UI on FLUXUI_ADDR (default :8501).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dispatcher, "dispatcher", "", "generator strategy: process or engine (env FLUXUI_DISPATCHER)")
	root.PersistentFlags().StringVar(&outputDir, "output-dir", "", "directory for generated images (env FLUXUI_OUTPUT_DIR)")

	load := func(cmd *cobra.Command) (context.Context, *config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if dispatcher != "" {
			cfg.Dispatcher = dispatcher
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
		ctx := log.NewContext(cmd.Context(), log.New(cmd.ErrOrStderr(), cfg.Debug))
		return ctx, cfg, nil
	}

	root.AddCommand(serveCmd(setup, load), generateCmd(setup, load), lambdaCmd(setup, load))
	return root
}

type loadFunc func(*cobra.Command) (context.Context, *config.Config, error)

func serveCmd(setup setupFunc, load loadFunc) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			injector := setup(ctx, cfg)
			defer func() { _ = injector.Shutdown() }()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return do.MustInvoke[*web.Server](injector).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env FLUXUI_ADDR)")
	return cmd
}

func generateCmd(setup setupFunc, load loadFunc) *cobra.Command {
	var input request.Input
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate one image and exit",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if input.Prompt == "" {
				input.Prompt = strings.Join(args, " ")
			}

			injector := setup(ctx, cfg)
			defer func() { _ = injector.Shutdown() }()

			out := do.MustInvoke[*handler.Handler](injector).Generate(ctx, input)
			if !out.Success() {
				return errors.New(out.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Image generated in %.2f seconds!\n", out.Result.ElapsedSeconds)
			fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", out.Result.SavedPath)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&input.Model, "model", "", "schnell (faster) or dev (better quality)")
	flags.StringVar(&input.Quantize, "quantize", "", "4 or 8 bit quantization, empty for none")
	flags.StringVar(&input.Steps, "steps", "", "denoising steps, 2 to 25 (default 4 for schnell, 20 for dev)")
	flags.StringVar(&input.Guidance, "guidance", "", "guidance scale for dev, 1.0 to 10.0 (default 3.5)")
	flags.StringVar(&input.Seed, "seed", "", "seed, same seed and settings give the same image (default 42)")
	flags.StringVar(&input.Resolution, "resolution", "", "512, 768 or 1024 (default 1024)")
	flags.StringVar(&input.Prompt, "prompt", "", "prompt, or pass it as arguments")
	return cmd
}

func lambdaCmd(setup setupFunc, load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:    "lambda",
		Short:  "Run as an AWS Lambda handler",
		Args:   cobra.NoArgs,
		Hidden: os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := load(cmd)
			if err != nil {
				return err
			}
			injector := setup(ctx, cfg)
			h := do.MustInvoke[*handler.Handler](injector)
			lambda.StartWithOptions(h.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
				_ = injector.Shutdown()
			}))
			return nil
		},
	}
}
