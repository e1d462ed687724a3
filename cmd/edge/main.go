package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linkflow/engine/internal/edge"
	"github.com/linkflow/engine/internal/version"
	"github.com/linkflow/engine/pkg/client"
)

func main() {
	var (
		port         = flag.Int("port", 7239, "Edge proxy port")
		httpPort     = flag.Int("http-port", 8080, "HTTP server port")
		edgeID       = flag.String("edge-id", getEnv("EDGE_ID", "edge-1"), "Edge node identifier")
		region       = flag.String("region", getEnv("EDGE_REGION", "local"), "Edge node region")
		upstreamAddr = flag.String("upstream-addr", getEnv("UPSTREAM_ADDR", "http://localhost:8080"), "Upstream frontend address")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	printBanner("Edge", logger)

	apiClient := client.New(client.Config{BaseURL: *upstreamAddr})
	centralClient := edge.NewHTTPCentralClient(apiClient)
	localStore := edge.NewMemoryStore()

	cfg := edge.DefaultConfig()
	cfg.EdgeID = *edgeID
	cfg.Region = *region
	cfg.CentralEndpoint = *upstreamAddr
	cfg.Logger = logger

	engine := edge.NewEngine(cfg, centralClient, localStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		logger.Error("failed to start edge engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
		engine.Stop(ctx)
		cancel()
	}()

	// Start HTTP server for health checks and local execution intake.
	go func() {
		mux := http.NewServeMux()
		registerRoutes(mux, engine, logger)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", *httpPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		logger.Info("starting HTTP server", slog.Int("port", *httpPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	logger.Info("edge proxy started",
		slog.Int("port", *port),
		slog.String("edge_id", *edgeID),
		slog.String("upstream_addr", *upstreamAddr),
	)

	<-ctx.Done()
	logger.Info("edge proxy stopped")
}

func registerRoutes(mux *http.ServeMux, engine *edge.Engine, logger *slog.Logger) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /mode", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"mode": engine.GetMode().String()})
	})

	mux.HandleFunc("POST /api/v1/edge/workspaces/{workspace_id}/executions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			WorkflowID string          `json:"workflow_id"`
			Input      json.RawMessage `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		exec, err := engine.StartExecution(r.Context(), r.PathValue("workspace_id"), body.WorkflowID, body.Input)
		if err != nil {
			logger.Error("failed to start edge execution", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, exec)
	})

	mux.HandleFunc("GET /api/v1/edge/executions/{execution_id}", func(w http.ResponseWriter, r *http.Request) {
		exec, err := engine.GetExecution(r.Context(), r.PathValue("execution_id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "execution not found"})
			return
		}
		writeJSON(w, http.StatusOK, exec)
	})

	mux.HandleFunc("POST /api/v1/edge/executions/{execution_id}/complete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Output json.RawMessage `json:"output"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		if err := engine.CompleteExecution(r.Context(), r.PathValue("execution_id"), body.Output); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func printBanner(service string, logger *slog.Logger) {
	logger.Info(fmt.Sprintf("LinkFlow %s Service", service),
		slog.String("version", version.Version),
		slog.String("commit", version.GitCommit),
		slog.String("build_time", version.BuildTime),
	)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
