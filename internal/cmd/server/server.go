// Package server wires configuration and startup for the assets service.
package server

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/louisbranch/assetpipe/internal/bundle"
	"github.com/louisbranch/assetpipe/internal/bundle/manifest"
	"github.com/louisbranch/assetpipe/internal/bundle/scripttag"
	"github.com/louisbranch/assetpipe/internal/platform/config"
	"github.com/louisbranch/assetpipe/internal/platform/otel"
	"github.com/louisbranch/assetpipe/internal/services/assets"
)

// Config holds the assets command configuration. Values load from
// ASSETPIPE_-prefixed environment variables and may be overridden by flags.
// The configuration is read once at startup and never mutated afterwards.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"localhost:8088"`
	// SecretKey keys the reversible token codec.
	SecretKey string `env:"SECRET_KEY"`
	// TokenStrategy selects the manifest codec: "cipher" or "digest".
	TokenStrategy string `env:"TOKEN_STRATEGY" envDefault:"cipher"`
	// Version is the current build generation embedded in URLs and
	// artifact names.
	Version string `env:"VERSION" envDefault:"dev"`
	// Route is the URL prefix of the bundle endpoint.
	Route string `env:"ROUTE" envDefault:"/bundle"`
	// SourcePrefix is the URL prefix for raw sources in debug mode.
	SourcePrefix string `env:"SOURCE_PREFIX" envDefault:"/src"`
	// SourceRoot is the directory registrable script files live under.
	SourceRoot string `env:"SOURCE_ROOT" envDefault:"./scripts"`
	// BuildOutputDir receives cached artifacts.
	BuildOutputDir string `env:"BUILD_OUTPUT_DIR" envDefault:"./bundle-cache"`
	// CacheEnabled bypasses the artifact cache entirely when false.
	CacheEnabled bool `env:"CACHE_ENABLED" envDefault:"true"`
	// IgnoreDuplicateRegistrations makes repeated script registration a no-op.
	IgnoreDuplicateRegistrations bool `env:"IGNORE_DUPLICATE_REGISTRATIONS" envDefault:"true"`
	// UseAsyncAttribute appends async to rendered script tags.
	UseAsyncAttribute bool `env:"USE_ASYNC_ATTRIBUTE" envDefault:"false"`
	// Debug serves one tag per file and raw sources instead of bundles.
	Debug bool `env:"DEBUG" envDefault:"false"`
	// OTELEndpoint enables trace export when set, e.g. "http://otel:4318".
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// ParseConfig loads environment defaults and parses flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.Version, "version", cfg.Version, "current build generation")
	fs.StringVar(&cfg.Route, "route", cfg.Route, "bundle endpoint URL prefix")
	fs.StringVar(&cfg.SourceRoot, "source-root", cfg.SourceRoot, "script source directory")
	fs.StringVar(&cfg.BuildOutputDir, "output-dir", cfg.BuildOutputDir, "artifact cache directory")
	fs.BoolVar(&cfg.CacheEnabled, "cache", cfg.CacheEnabled, "serve artifacts from the on-disk cache")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "serve unmerged scripts and raw sources")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// TagOptions exposes the script-tag rendering options this configuration
// implies, for page-template integrations embedding the pipeline.
func (c Config) TagOptions() scripttag.Options {
	return scripttag.Options{
		Route:            c.Route,
		Version:          c.Version,
		SourcePrefix:     c.SourcePrefix,
		IgnoreDuplicates: c.IgnoreDuplicateRegistrations,
		Async:            c.UseAsyncAttribute,
	}
}

// Run starts the assets server and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	shutdownTracing, err := otel.Setup(ctx, "assetpipe", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	codec, err := manifest.New(cfg.TokenStrategy, cfg.SecretKey)
	if err != nil {
		return fmt.Errorf("init manifest codec: %w", err)
	}

	builder, err := bundle.NewBuilder(bundle.Config{
		SourceRoot:   cfg.SourceRoot,
		OutputDir:    cfg.BuildOutputDir,
		Version:      cfg.Version,
		CacheEnabled: cfg.CacheEnabled,
	}, codec)
	if err != nil {
		return fmt.Errorf("init bundle builder: %w", err)
	}

	server, err := assets.NewServer(assets.Config{
		HTTPAddr:     cfg.HTTPAddr,
		Route:        cfg.Route,
		SourcePrefix: cfg.SourcePrefix,
		SourceRoot:   cfg.SourceRoot,
		Debug:        cfg.Debug,
	}, builder)
	if err != nil {
		return fmt.Errorf("init assets server: %w", err)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve assets: %w", err)
	}
	return nil
}
