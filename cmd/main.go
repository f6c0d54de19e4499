// talentflow-pipeline-service
//
// Pipeline state and funnel analytics for recruiting.
// Exposes a REST API used by the Gateway to implement:
//   - transition(candidateId, targetStage, note?) — append-only stage moves
//   - funnel(jobId)                               — live funnel report + bottleneck
//   - candidate CRUD-lite                         — add / list / get / score
//
// Publishes EVENT_STAGE_MOVED and EVENT_CANDIDATE_PLACED to Redis for the
// Gateway SSE forward. A cron job keeps per-job funnel reports warm in Redis.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"talentflow/pipeline-service/internal/config"
	"talentflow/pipeline-service/internal/db"
	"talentflow/pipeline-service/internal/pipeline"
	"talentflow/pipeline-service/internal/scheduler"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[pipeline-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[pipeline-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[pipeline-service] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[pipeline-service] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[pipeline-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[pipeline-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[pipeline-service] Redis connected ✓")

	// ── Core service ─────────────────────────────────────────────────────────
	store := pipeline.NewStore(pool)
	svc := pipeline.NewService(store, rdb, cfg.TransitionLockWait, cfg.FunnelCacheTTL)

	// ── Funnel cache refresher ───────────────────────────────────────────────
	sched := scheduler.New(svc, cfg.FunnelRefreshMinutes)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[pipeline-service] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	h := pipeline.NewHandler(svc)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[pipeline-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[pipeline-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[pipeline-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[pipeline-service] Shutdown error: %v", err)
	}
	log.Println("[pipeline-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "pipeline-service",
		"version": version,
	})
}
