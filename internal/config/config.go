package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DispatcherProcess = "process"
	DispatcherEngine  = "engine"

	ParamSourceEnv = "env"
	ParamSourceSSM = "ssm"
)

// Config holds all configuration for the application
type Config struct {
	Addr             string
	OutputDir        string
	Dispatcher       string
	Command          string
	EngineURL        string
	ParamSource      string
	EngineTokenParam string
	PromptsParam     string
	Bucket           string
	Distribution     string
	Debug            bool
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{
		Addr:             getenv("FLUXUI_ADDR", ":8501"),
		OutputDir:        getenv("FLUXUI_OUTPUT_DIR", "generated_images"),
		Dispatcher:       getenv("FLUXUI_DISPATCHER", DispatcherProcess),
		Command:          getenv("FLUXUI_COMMAND", "mflux-generate"),
		EngineURL:        getenv("FLUXUI_ENGINE_URL", "http://127.0.0.1:7860"),
		ParamSource:      getenv("FLUXUI_PARAM_SOURCE", ParamSourceEnv),
		EngineTokenParam: getenv("FLUXUI_ENGINE_TOKEN_PARAM", "FLUXUI_ENGINE_TOKEN"),
		PromptsParam:     getenv("FLUXUI_PROMPTS_PARAM", "FLUXUI_PROMPTS"),
		Bucket:           os.Getenv("FLUXUI_BUCKET"),
		Distribution:     os.Getenv("FLUXUI_DISTRIBUTION"),
	}

	if v := os.Getenv("FLUXUI_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("FLUXUI_DEBUG: %w", err)
		}
		config.Debug = debug
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.Dispatcher {
	case DispatcherProcess, DispatcherEngine:
	default:
		return fmt.Errorf("FLUXUI_DISPATCHER must be %q or %q, got %q", DispatcherProcess, DispatcherEngine, c.Dispatcher)
	}
	switch c.ParamSource {
	case ParamSourceEnv, ParamSourceSSM:
	default:
		return fmt.Errorf("FLUXUI_PARAM_SOURCE must be %q or %q, got %q", ParamSourceEnv, ParamSourceSSM, c.ParamSource)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("FLUXUI_OUTPUT_DIR is required")
	}
	if c.Distribution != "" && c.Bucket == "" {
		return fmt.Errorf("FLUXUI_DISTRIBUTION requires FLUXUI_BUCKET")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
