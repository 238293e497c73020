// Package main runs the leaderboard service: it consumes the ordered
// event feed over websocket, applies every event to the entity store, and
// serves rank/top-K/histogram queries plus Prometheus metrics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lending-points-lab/internal/accrual"
	"lending-points-lab/internal/chain"
	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/ingestion"
	"lending-points-lab/internal/leaderboard"
	"lending-points-lab/internal/observability"
	"lending-points-lab/internal/processor"
	"lending-points-lab/internal/storage"
	chstore "lending-points-lab/internal/storage/clickhouse"
	"lending-points-lab/internal/storage/memory"
	"lending-points-lab/internal/storage/migrations"
	pgstore "lending-points-lab/internal/storage/postgres"
)

func main() {
	loadEnvFile()

	feedEndpoint := flag.String("feed-endpoint", os.Getenv("FEED_WS_ENDPOINT"), "Event feed WebSocket endpoint")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("CHAIN_RPC_ENDPOINT"), "Chain-read JSON-RPC endpoint (optional)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	httpAddr := flag.String("http-addr", ":8080", "HTTP API address")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *feedEndpoint == "" {
		logger.Fatal("--feed-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, history, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

	var reader chain.Reader
	if *rpcEndpoint != "" {
		reader = chain.NewHTTPClient(*rpcEndpoint)
	}

	board := leaderboard.New(leaderboard.Options{Store: store, Metrics: metrics, Logger: logger})
	engine := accrual.New(accrual.Options{
		Store:   store,
		Board:   board,
		History: history,
		Metrics: metrics,
		Logger:  logger,
	})
	proc := processor.New(processor.Options{
		Store:   store,
		Engine:  engine,
		Board:   board,
		Reader:  reader,
		History: history,
		Metrics: metrics,
		Logger:  logger,
	})

	feed, err := chain.NewFeedClient(ctx, *feedEndpoint, nil)
	if err != nil {
		logger.Fatalf("Failed to connect event feed: %v", err)
	}
	defer feed.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	go startHTTPServer(*httpAddr, store, board, logger)

	runner := ingestion.NewRunner(feed, proc, logger)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Runner error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores builds the entity store and the optional analytics sink.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.Store, storage.HistorySink, func(), error) {
	if useMemory {
		return memory.NewStore(), nil, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	if clickhouseDSN == "" {
		return pgstore.NewStore(pool), nil, pool.Close, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
	}

	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return pgstore.NewStore(pool), chstore.NewHistorySink(conn), cleanup, nil
}

// startHTTPServer serves the leaderboard query API.
func startHTTPServer(addr string, store storage.Store, board *leaderboard.Facade, logger *log.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/v1/topk", func(w http.ResponseWriter, r *http.Request) {
		entries, err := board.TopK(r.Context(), scopeParam(r))
		if err != nil {
			httpError(w, err)
			return
		}
		if entries == nil {
			entries = []domain.TopKEntry{}
		}
		writeJSON(w, entries)
	})

	mux.HandleFunc("/v1/rank/", func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimPrefix(r.URL.Path, "/v1/rank/")
		if userID == "" {
			http.Error(w, "missing user id", http.StatusBadRequest)
			return
		}
		result, err := board.Rank(r.Context(), scopeParam(r), userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "user not ranked in scope", http.StatusNotFound)
				return
			}
			httpError(w, err)
			return
		}
		writeJSON(w, result)
	})

	mux.HandleFunc("/v1/buckets", func(w http.ResponseWriter, r *http.Request) {
		buckets, err := board.Buckets(r.Context(), scopeParam(r))
		if err != nil {
			httpError(w, err)
			return
		}
		if buckets == nil {
			buckets = []domain.ScoreBucket{}
		}
		writeJSON(w, buckets)
	})

	mux.HandleFunc("/v1/participants", func(w http.ResponseWriter, r *http.Request) {
		count, err := board.Participants(r.Context(), scopeParam(r))
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]int64{"participants": count})
	})

	mux.HandleFunc("/v1/user/", func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimPrefix(r.URL.Path, "/v1/user/")
		if userID == "" {
			http.Error(w, "missing user id", http.StatusBadRequest)
			return
		}
		state, err := store.GetUserState(r.Context(), userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "unknown user", http.StatusNotFound)
				return
			}
			httpError(w, err)
			return
		}
		writeJSON(w, state)
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Printf("Starting HTTP server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}

// scopeParam resolves the ?scope= query parameter, defaulting to the
// externally consumed global mirror.
func scopeParam(r *http.Request) domain.Scope {
	if s := r.URL.Query().Get("scope"); s != "" {
		return domain.Scope(s)
	}
	return domain.GlobalScope
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
