package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dailygrind/dailygrind/internal/api"
	"github.com/dailygrind/dailygrind/internal/app/orchestrator"
	"github.com/dailygrind/dailygrind/internal/infra/judge"
	"github.com/dailygrind/dailygrind/internal/infra/store"
)

// Daemon wires the store, judge client, orchestrator and API server into
// one runnable process.
type Daemon struct {
	cfg        Config
	store      *store.Store
	orch       *orchestrator.Orchestrator
	server     *http.Server
	instanceID string
}

// New assembles a daemon from config.
func New(cfg Config) (*Daemon, error) {
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	jc := judge.New(judge.Config{
		BaseURL: cfg.Judge.BaseURL,
		Timeout: time.Duration(cfg.Judge.TimeoutSeconds) * time.Second,
	})

	orch := orchestrator.New(st, jc, nil, nil)
	instanceID := uuid.NewString()

	srv := api.NewServer(orch, jc, instanceID)
	if cfg.Metrics.Enabled {
		srv.EnableMetrics()
	}

	return &Daemon{
		cfg:        cfg,
		store:      st,
		orch:       orch,
		instanceID: instanceID,
		server: &http.Server{
			Addr:              cfg.API.Addr(),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run starts the daemon and blocks until ctx is cancelled. The first ensure
// cycle runs at boot so a machine waking past midnight rolls the day over
// without waiting for a trigger.
func (d *Daemon) Run(ctx context.Context) error {
	log.Printf("[daemon] instance %s listening on %s", d.instanceID, d.cfg.API.Addr())

	if _, err := d.orch.EnsureDailyState(ctx, false); err != nil {
		// Boot continues; the state reconciles on the next trigger.
		log.Printf("[daemon] initial ensure failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		d.store.Close()
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[daemon] shutdown: %v", err)
	}
	return d.store.Close()
}
