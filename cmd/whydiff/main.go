package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/guillermoBallester/whydiff/internal/adapter/mcp"
	"github.com/guillermoBallester/whydiff/internal/adapter/postgres"
	"github.com/guillermoBallester/whydiff/internal/adapter/sqlite"
	"github.com/guillermoBallester/whydiff/internal/audit"
	"github.com/guillermoBallester/whydiff/internal/config"
	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/port"
	"github.com/guillermoBallester/whydiff/internal/core/service"
	"github.com/guillermoBallester/whydiff/internal/job"
	"github.com/guillermoBallester/whydiff/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags maps command-line flags onto config overrides. Only flags that
// were given are set, so environment variables keep their values otherwise.
func parseFlags(args []string) (config.Overrides, error) {
	var o config.Overrides
	fs := flag.NewFlagSet("whydiff", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	databaseURL := fs.String("database-url", "", "database URL (postgres://... or a SQLite file)")
	driver := fs.String("driver", "", "database driver: postgres or sqlite (default: inferred from the URL)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	queryTimeout := fs.Duration("query-timeout", 0, "timeout per generated statement")
	rangeBuckets := fs.Int("range-buckets", 0, "equal-frequency tiles per range column")
	maxSetValues := fs.Int("max-set-values", 0, "most common values reported per column")
	transport := fs.String("transport", "", "MCP transport: stdio or http")
	httpAddr := fs.String("http-addr", "", "listen address for the HTTP transport")
	httpBearerToken := fs.String("http-bearer-token", "", "bearer token required by the HTTP transport")
	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum pool connections")
	poolMinConns := fs.Int("pool-min-conns", 0, "minimum pool connections")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime")
	fs.BoolVar(&o.OTelEnabled, "otel", false, "enable OpenTelemetry tracing and metrics")
	fs.BoolVar(&o.ForceSynthetic, "force-synthetic", false, "plan grouping sets with UNION ALL on every backend")
	fs.StringVar(&o.AuditLog, "audit-log", "", "path to an NDJSON audit log of executed statements")
	fs.StringVar(&o.JobFile, "job", "", "run the diff job in this YAML file, print JSON and exit")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}
	if fs.NArg() > 0 {
		return config.Overrides{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	var perr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "database-url":
			o.DatabaseURL = databaseURL
		case "driver":
			o.Driver = driver
		case "log-level":
			o.LogLevel = logLevel
		case "query-timeout":
			o.QueryTimeout = queryTimeout
		case "range-buckets":
			o.RangeBuckets = rangeBuckets
		case "max-set-values":
			o.MaxSetValues = maxSetValues
		case "transport":
			o.Transport = transport
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "http-bearer-token":
			o.HTTPBearerToken = httpBearerToken
		case "pool-max-conns":
			o.PoolMaxConns, perr = int32Flag(f.Name, *poolMaxConns, perr)
		case "pool-min-conns":
			o.PoolMinConns, perr = int32Flag(f.Name, *poolMinConns, perr)
		case "pool-max-conn-lifetime":
			o.PoolMaxConnLifetime = poolMaxConnLifetime
		}
	})
	if perr != nil {
		return config.Overrides{}, perr
	}
	return o, nil
}

func int32Flag(name string, v int, prev error) (*int32, error) {
	if prev != nil {
		return nil, prev
	}
	if v < -1<<31 || v > 1<<31-1 {
		return nil, fmt.Errorf("invalid --%s value %d: out of range", name, v)
	}
	n := int32(v)
	return &n, nil
}

// backend is the database side of the service graph.
type backend struct {
	executor port.RelationalExecutor
	schema    port.SchemaProvider
	validator port.RelationValidator
	close     func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database pool connected",
			slog.String("db.system", "postgresql"),
			slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		)
		return &backend{
			executor:  postgres.NewExecutor(pool, cfg.ReadOnly, cfg.QueryTimeout),
			schema:    postgres.NewSchemaProvider(pool, cfg.Schemas),
			validator: domain.NewPgQueryValidator(),
			close:     pool.Close,
		}, nil
	default:
		db, err := sqlite.Open(ctx, cfg.DatabaseURL, cfg.ReadOnly)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		logger.Info("database opened",
			slog.String("db.system", "sqlite"),
			slog.String("database_url", cfg.DatabaseURL),
		)
		return &backend{
			executor:  sqlite.NewExecutor(db, cfg.QueryTimeout),
			schema:    sqlite.NewSchemaProvider(db),
			validator: sqlite.NewValidator(),
			close:     closeDB(db, logger),
		}, nil
	}
}

func dbSystem(driver string) string {
	if driver == config.DriverPostgres {
		return "postgresql"
	}
	return driver
}

func closeDB(db *sql.DB, logger *slog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", slog.String("error", err.Error()))
		}
	}
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr: stdout carries MCP stdio and job output.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting whydiff",
		slog.String("version", version),
		slog.String("driver", cfg.Driver),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.Bool("read_only", cfg.ReadOnly),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.Int("range_buckets", cfg.RangeBuckets),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var tracer trace.Tracer
	var inst port.Instrumentation = telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, telemetry.Options{
			ServiceName: "whydiff",
			Version:     version,
			DBSystem:    dbSystem(cfg.Driver),
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
		tracer = provider.Tracer()
		inst = provider.Instruments()
		logger.Info("telemetry enabled")
	}

	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() {
			if err := fa.Close(); err != nil {
				logger.Error("closing audit log", slog.String("error", err.Error()))
			}
		}()
		auditor = fa
		logger.Info("audit log enabled", slog.String("path", cfg.AuditLog))
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	runner := service.NewQueryRunner(be.executor, auditor, logger, tracer, inst)
	stats := service.NewStatisticsEngine(runner, be.schema, logger, service.StatisticsOptions{
		MaxSetValues: cfg.MaxSetValues,
		RangeBuckets: cfg.StatsRangeBuckets,
	})
	diff := service.NewDiffService(runner, stats, be.validator, logger, tracer, inst, service.DiffOptions{
		RangeBuckets:   cfg.RangeBuckets,
		ForceSynthetic: cfg.ForceSynthetic,
	})

	if cfg.JobFile != "" {
		return runJob(ctx, diff, cfg.JobFile, os.Stdout, logger)
	}

	svc := mcp.Services{
		Diff:   diff,
		Stats:  stats,
		Schema: service.NewSchemaService(be.schema),
	}
	mcpServer := mcp.NewServer(version, svc, logger, tracer, inst)

	if cfg.Transport == "http" {
		return serveHTTP(ctx, mcpServer, cfg, logger)
	}

	stdioServer := mcpserver.NewStdioServer(mcpServer)
	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// runJob runs one diff job and writes the result as indented JSON.
func runJob(ctx context.Context, diff *service.DiffService, path string, out io.Writer, logger *slog.Logger) error {
	req, err := job.LoadFromFile(path)
	if err != nil {
		return err
	}
	logger.Info("running diff job", slog.String("path", path))

	res, err := diff.Diff(ctx, req)
	if err != nil {
		return fmt.Errorf("running diff job: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, mcpServer *mcpserver.MCPServer, cfg *config.Config, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", bearerAuthMiddleware(mcpserver.NewStreamableHTTPServer(mcpServer), cfg.HTTPBearerToken))
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", slog.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
