package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/loadpulse/loadpulse/pkg/config"
	"github.com/loadpulse/loadpulse/pkg/downsample"
	"github.com/loadpulse/loadpulse/pkg/export"
	"github.com/loadpulse/loadpulse/pkg/httpx"
	"github.com/loadpulse/loadpulse/pkg/ingest"
	"github.com/loadpulse/loadpulse/pkg/pipeline"
	"github.com/loadpulse/loadpulse/pkg/store"
	badgerstore "github.com/loadpulse/loadpulse/pkg/store/badger"
	"github.com/loadpulse/loadpulse/pkg/store/memory"
	"github.com/loadpulse/loadpulse/pkg/worker"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second

	pollRunID   = "poll"
	workerRunID = "worker"

	// Simulated load size for the built-in worker producer.
	simulatedUsers = 50
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults apply when empty)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error("load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := newStore(cfg, log)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	pipe := pipeline.New(pipeline.RulesFromConfig(cfg.Rules), pipeline.CleaningFromConfig(cfg.Cleaning))
	sampler := downsample.New(cfg.Downsample.CacheSize)

	hub := ingest.NewHub(log)
	go hub.Run(ctx)

	handler := ingest.NewHandler(pipe, st, sampler, downsample.ConfigFromFile(cfg.Downsample), hub, log)

	router := mux.NewRouter()
	handler.Register(router)
	export.NewHandler(st, pipeline.RulesFromConfig(cfg.Rules), log).Register(router)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				pipe.Reconfigure(pipeline.RulesFromConfig(next.Rules), pipeline.CleaningFromConfig(next.Cleaning))
				log.Info("pipeline reconfigured", "path", *configPath)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("config watch", "error", err)
			}
		}()
	}

	if cfg.Poll.URL != "" {
		poller := ingest.NewPoller(cfg.Poll.URL, pollRunID, cfg.Poll.Interval, pipe, st, hub, log)
		go poller.Run(ctx)
	}

	if cfg.Worker.Enabled {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		sim := worker.New(worker.Simulate(simulatedUsers, rng), workerRunID, cfg.Worker.Interval, pipe, st, hub, log)
		go sim.Run(ctx)
	}

	go runRetention(ctx, st, cfg.Server.Retention, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
	}()

	log.Info("loadpulse listening",
		"port", cfg.Server.Port,
		"persistent", cfg.Server.Persistent,
		"retention", cfg.Server.Retention)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve", "error", err)
		os.Exit(1)
	}
	log.Info("loadpulse stopped")
}

// newStore picks the serving buffer backend. Persistent mode keeps the
// buffer on disk across restarts; the default is a process-local one.
func newStore(cfg *config.Config, log *slog.Logger) (store.Store, error) {
	if !cfg.Server.Persistent {
		return memory.New(), nil
	}
	log.Info("opening persistent buffer", "dir", cfg.Server.DataDir)
	return badgerstore.New(badgerstore.Config{Path: cfg.Server.DataDir})
}

// runRetention drops points older than the configured retention window on
// a fixed cadence.
func runRetention(ctx context.Context, st store.Store, retention time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cutoff := now.Add(-retention)
			if err := st.Delete(ctx, cutoff); err != nil {
				log.Warn("retention sweep", "error", err)
				continue
			}
			log.Debug("retention sweep complete", "cutoff", cutoff)
		}
	}
}
