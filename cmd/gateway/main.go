// Package main is the entry point for the dispatch gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/apidispatch/internal/config"
	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
	"github.com/vyrodovalexey/apidispatch/internal/plugin"
	"github.com/vyrodovalexey/apidispatch/internal/router"
	"github.com/vyrodovalexey/apidispatch/internal/security"
	"github.com/vyrodovalexey/apidispatch/internal/server"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	cfg := loadConfig(flags.configPath)

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	run(cfg, flags.configPath, logger)
}

func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("GATEWAY_CONFIG_PATH", ""),
		"Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		showVersion: *showVersion,
	}
}

func printVersion() {
	fmt.Printf("apidispatch version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.Default()
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) observability.Logger {
	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func run(cfg *config.Config, configPath string, logger observability.Logger) {
	ctx := context.Background()

	tracer, err := observability.NewTracer(cfg.Tracing)
	if err != nil {
		logger.Error("failed to initialize tracer", observability.Error(err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()

	dispatcher, err := buildDispatcher(cfg, logger, registry, tracer)
	if err != nil {
		logger.Error("failed to initialize dispatcher", observability.Error(err))
		os.Exit(1)
	}

	serverOpts := []server.ServerOption{server.WithServerLogger(logger)}
	if cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, server.WithMetricsEndpoint(cfg.Metrics.Path, registry))
	}

	srv, err := server.New(cfg.Server, dispatcher, serverOpts...)
	if err != nil {
		logger.Error("failed to initialize server", observability.Error(err))
		os.Exit(1)
	}

	watcher := startWatcher(ctx, configPath, logger, func(next *config.Config) {
		rebuilt, err := buildDispatcher(next, logger, registry, tracer)
		if err != nil {
			logger.Error("reload produced an unusable pipeline, keeping current one",
				observability.Error(err))
			return
		}
		srv.SetDispatcher(rebuilt)
		logger.Info("dispatch pipeline rebuilt from reloaded configuration")
	})
	if watcher != nil {
		defer func() { _ = watcher.Stop() }()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("received shutdown signal",
			observability.String("signal", sig.String()),
		)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", observability.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", observability.Error(err))
	}
}

// buildDispatcher assembles the full pipeline from one configuration.
// Called at startup and again on every configuration reload.
func buildDispatcher(
	cfg *config.Config,
	logger observability.Logger,
	registry *prometheus.Registry,
	tracer *observability.Tracer,
) (*dispatch.Dispatcher, error) {
	schemes, err := buildSchemes(cfg, logger)
	if err != nil {
		return nil, err
	}

	rt := router.New(router.WithRouterLogger(logger))
	registerOperations(rt, schemes)

	plugins, err := buildPlugins(cfg, logger, registry)
	if err != nil {
		return nil, err
	}

	opts := []dispatch.Option{
		dispatch.WithAutoHandleHTTPErrors(cfg.Dispatch.AutoHandleErrors),
		dispatch.WithValidateDefaultResponses(cfg.Dispatch.ValidateDefaultResponses),
		dispatch.WithPlugins(plugins...),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(dispatch.NewMetricsWithRegisterer("apidispatch", registry)),
		dispatch.WithTracer(tracer),
	}
	if cfg.Dispatch.ValidateResponses {
		opts = append(opts,
			dispatch.WithResponseValidationCallback(logValidationFailures(logger)))
	}

	return dispatch.New(rt, opts...)
}

// startWatcher begins watching the configuration file when one was
// supplied. Returns nil when running without a file.
func startWatcher(ctx context.Context, path string, logger observability.Logger, onReload config.Callback) *config.Watcher {
	if path == "" {
		return nil
	}

	watcher, err := config.NewWatcher(path, onReload,
		config.WithWatcherLogger(logger))
	if err != nil {
		logger.Error("failed to create config watcher", observability.Error(err))
		os.Exit(1)
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Error("failed to start config watcher", observability.Error(err))
		os.Exit(1)
	}
	return watcher
}

// buildSchemes constructs the configured security schemes.
func buildSchemes(cfg *config.Config, logger observability.Logger) ([]security.Scheme, error) {
	var schemes []security.Scheme

	if b := cfg.Security.Bearer; b != nil {
		opts := []security.BearerOption{
			security.WithBearerSecret([]byte(b.Secret)),
			security.WithBearerLogger(logger),
		}
		if b.Issuer != "" {
			opts = append(opts, security.WithBearerIssuer(b.Issuer))
		}
		if b.Audience != "" {
			opts = append(opts, security.WithBearerAudience(b.Audience))
		}

		scheme, err := security.NewBearerScheme("bearer", opts...)
		if err != nil {
			return nil, err
		}
		schemes = append(schemes, scheme)
	}

	if k := cfg.Security.APIKey; k != nil {
		entries := make([]security.APIKeyEntry, 0, len(k.Keys))
		for _, key := range k.Keys {
			entries = append(entries, security.APIKeyEntry{
				Hash:      []byte(key.Hash),
				Principal: key.Principal,
				Roles:     key.Roles,
			})
		}

		opts := []security.APIKeyOption{security.WithAPIKeyLogger(logger)}
		if k.Header != "" {
			opts = append(opts, security.WithAPIKeyHeader(k.Header))
		}
		if k.Query != "" {
			opts = append(opts, security.WithAPIKeyQuery(k.Query))
		}

		scheme, err := security.NewAPIKeyScheme("apiKey", entries, opts...)
		if err != nil {
			return nil, err
		}
		schemes = append(schemes, scheme)
	}

	if b := cfg.Security.Basic; b != nil {
		users := make(map[string][]byte, len(b.Users))
		for username, hash := range b.Users {
			users[username] = []byte(hash)
		}

		scheme, err := security.NewBasicScheme("basic", users, security.WithBasicLogger(logger))
		if err != nil {
			return nil, err
		}
		schemes = append(schemes, scheme)
	}

	return schemes, nil
}

// buildPlugins constructs the configured plugin chain in its fixed
// order: request ID, access log, rate limit.
func buildPlugins(cfg *config.Config, logger observability.Logger, registry *prometheus.Registry) ([]dispatch.Plugin, error) {
	var plugins []dispatch.Plugin

	if cfg.Plugins.RequestID {
		plugins = append(plugins, plugin.NewRequestID())
	}
	if cfg.Plugins.AccessLog {
		plugins = append(plugins, plugin.NewAccessLog(logger))
	}

	rl := cfg.Plugins.RateLimit
	if rl.Enabled {
		limit := plugin.Limit{Requests: rl.Requests, Window: rl.Window.Duration()}

		var limiter plugin.Limiter
		switch rl.Backend {
		case "redis":
			client := redis.NewClient(&redis.Options{
				Addr:     rl.Redis.Address,
				Password: rl.Redis.Password,
				DB:       rl.Redis.DB,
			})
			opts := []plugin.RedisLimiterOption{plugin.WithRedisLimiterLogger(logger)}
			if rl.Redis.Prefix != "" {
				opts = append(opts, plugin.WithRedisLimiterPrefix(rl.Redis.Prefix))
			}
			limiter = plugin.NewRedisLimiter(client, limit, opts...)
		default:
			limiter = plugin.NewMemoryLimiter(limit)
		}

		plugins = append(plugins, plugin.NewRateLimit(limiter, limit,
			plugin.WithRateLimitLogger(logger),
			plugin.WithRateLimitMetrics(
				plugin.NewRateLimitMetricsWithRegisterer("apidispatch", registry)),
		))
	}

	return plugins, nil
}

// registerOperations registers the built-in operations. Configured
// schemes protect the echo operation; the status operation stays open.
func registerOperations(rt *router.Router, schemes []security.Scheme) {
	rt.MustRegister(
		router.OperationSpec{
			ID:     "getStatus",
			Method: http.MethodGet,
			Path:   "/v1/status",
			Controller: func(ctx context.Context, rc *dispatch.RequestContext) (any, error) {
				return map[string]string{
					"status":  "ok",
					"version": version,
				}, nil
			},
			Responses: &router.ResponseContract{
				Statuses: map[int]router.ResponseSpec{
					http.StatusOK: {ContentType: "application/json", BodyRequired: true},
				},
			},
		},
		router.OperationSpec{
			ID:      "postEcho",
			Method:  http.MethodPost,
			Path:    "/v1/echo",
			Schemes: schemes,
			Controller: func(ctx context.Context, rc *dispatch.RequestContext) (any, error) {
				body, err := rc.GetBody(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"user": rc.User,
					"body": body,
				}, nil
			},
		},
	)
}

func logValidationFailures(logger observability.Logger) dispatch.ResponseValidationCallback {
	return func(ctx context.Context, result dispatch.ValidationResult) error {
		for _, issue := range result.Errors {
			logger.WithContext(ctx).Warn("response validation issue",
				observability.String("location", issue.Location),
				observability.String("message", issue.Message),
			)
		}
		return nil
	}
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
