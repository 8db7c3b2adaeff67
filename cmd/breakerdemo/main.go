// Command breakerdemo drives an Orchestrator against a downstream gRPC
// call on a fixed interval, exposing its live state and gauges over HTTP.
// It exists to exercise the full stack end to end the way the teacher's
// autonomyd exercises its own failover stack (cmd/autonomyd/main.go).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/adaptivebreaker/breaker/pkg/audit"
	breakerconfig "github.com/adaptivebreaker/breaker/pkg/config"
	"github.com/adaptivebreaker/breaker/pkg/demoservice"
	"github.com/adaptivebreaker/breaker/pkg/logx"
	"github.com/adaptivebreaker/breaker/pkg/metricstore"
	"github.com/adaptivebreaker/breaker/pkg/modelstore"
	"github.com/adaptivebreaker/breaker/pkg/orchestrator"
	"github.com/adaptivebreaker/breaker/pkg/telemetry"
)

const (
	appName    = "breakerdemo"
	appVersion = "1.0.0"
)

var (
	configPath   = flag.String("config", "", "Path to a breaker.* UCI-style config file")
	logLevel     = flag.String("log-level", "info", "Log level (debug|info|warn|error)")
	listenAddr   = flag.String("listen", ":9091", "HTTP address for /status, /metrics, /decisions")
	grpcTarget   = flag.String("target", "127.0.0.1:50051", "Downstream gRPC target (host:port)")
	grpcMethod   = flag.String("method", "grpc.health.v1.Health/Check", "Fully-qualified gRPC method to call each tick")
	dbPath       = flag.String("db-path", "/tmp/adaptivebreaker/snapshots.db", "Snapshot sqlite database path")
	modelPath    = flag.String("model-path", "/tmp/adaptivebreaker/models.bbolt", "Ensemble model bbolt database path")
	auditDir     = flag.String("audit-dir", "/tmp/adaptivebreaker/audit", "Decision audit log directory")
	callInterval = flag.Duration("call-interval", time.Second, "Interval between demo calls")
	version      = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	logger := logx.New(logx.Options{Level: *logLevel}).With("component", appName)

	cfg, err := breakerconfig.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	metricSink, err := metricstore.NewSQLiteStore(metricstore.SQLiteConfig{DatabasePath: *dbPath}, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}

	modelSink, err := modelstore.Open(*modelPath, logger)
	if err != nil {
		logger.Error("failed to open model store", "error", err)
		os.Exit(1)
	}
	defer modelSink.Close()

	orch := orchestrator.New(cfg, metricSink, modelSink, logger)
	defer orch.Shutdown()

	orch.SetDecisionLogger(audit.NewDecisionLogger(logger, 1000, *auditDir))

	telem := telemetry.New()
	orch.SetTelemetry(telem)

	client := demoservice.New(*grpcTarget, *grpcMethod, 5*time.Second, logger)

	router := newRouter(orch, telem)
	server := &http.Server{Addr: *listenAddr, Handler: router}
	go func() {
		logger.Info("http server listening", "addr", *listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*callInterval)
	defer ticker.Stop()

	logger.Info("breakerdemo started", "target", *grpcTarget, "method", *grpcMethod)

	for {
		select {
		case <-ticker.C:
			runTick(ctx, orch, client, logger)
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = server.Shutdown(shutdownCtx)
			cancel()
			return
		}
	}
}

func runTick(ctx context.Context, orch *orchestrator.Orchestrator, client *demoservice.Client, logger *logx.Logger) {
	_, err := orchestrator.Execute(orch, func() (string, error) {
		return client.Call(ctx)
	})
	if err != nil {
		logger.Warn("demo call rejected or failed", "error", err, "state", orch.State().String())
	}
}

func newRouter(orch *orchestrator.Orchestrator, telem *telemetry.Telemetry) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		cfg := orch.Config()
		writeJSON(w, map[string]interface{}{
			"state":        orch.State().String(),
			"ml_enabled":   orch.MLEnabled(),
			"window_size":  cfg.WindowSize,
			"failure_rate": cfg.FailureRateThreshold,
			"open_wait_ms": cfg.OpenStateWait.Milliseconds(),
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/performance", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, orch.PerformanceReport())
	}).Methods(http.MethodGet)

	r.HandleFunc("/decisions", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, orch.DecisionHistory())
	}).Methods(http.MethodGet)

	r.HandleFunc("/patterns", func(w http.ResponseWriter, req *http.Request) {
		window := defaultPatternWindow
		if raw := req.URL.Query().Get("window"); raw != "" {
			if parsed, err := time.ParseDuration(raw); err == nil {
				window = parsed
			}
		}
		writeJSON(w, orch.Patterns(window))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", telem.Handler()).Methods(http.MethodGet)

	return r
}

// defaultPatternWindow is the lookback /patterns uses when the caller
// doesn't supply a ?window= query parameter.
const defaultPatternWindow = time.Hour

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
