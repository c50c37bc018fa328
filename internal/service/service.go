package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lastping/lastpingd/internal/api"
	"github.com/lastping/lastpingd/internal/auth"
	"github.com/lastping/lastpingd/internal/config"
	"github.com/lastping/lastpingd/internal/liveness"
	"github.com/lastping/lastpingd/internal/observability"
	"github.com/lastping/lastpingd/internal/ratelimit"
	"github.com/lastping/lastpingd/internal/snapshot"
)

const claimLimiterIdleTTL = time.Hour

// Service runs the daemon lifecycle: restore, serve, heartbeat, persist.
type Service struct {
	cfg      config.Config
	registry *liveness.Registry
	store    *snapshot.Store
	server   *api.Server

	persistMu     sync.Mutex
	lastPersisted uint64

	adminClientCount atomic.Int64
	started          time.Time
}

func New(cfg config.Config) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	tokens, err := cfg.TokenMap()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		store:   snapshot.NewStore(cfg.SnapshotPath, cfg.SnapshotSecret),
		started: time.Now(),
	}
	s.registry = liveness.NewRegistry(
		liveness.WithDefaultTimeout(cfg.DefaultTimeout),
		liveness.WithObserver(func(op string, err error) {
			observability.RecordEngineOperation(cfg.ID, op, outcomeLabel(err))
		}),
	)
	s.server = api.NewServer(api.Options{
		ID:          cfg.ID,
		CorsOrigins: cfg.CorsOrigins,
		Registry:    s.registry,
		Identifier:  auth.NewStaticTokens(tokens),
		ClaimLimits: ratelimit.New(cfg.ClaimRatePerSec, cfg.ClaimBurst, claimLimiterIdleTTL),
	})
	return s, nil
}

// Registry exposes the engine for admin control and tests.
func (s *Service) Registry() *liveness.Registry {
	return s.registry
}

// Run blocks until process signal shutdown.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.bootstrap(); err != nil {
		return err
	}
	return s.serve(ctx)
}

// bootstrap restores the persisted registry before the server comes up.
func (s *Service) bootstrap() error {
	if !s.store.Enabled() {
		log.Info().Str("node", s.cfg.ID).Msg("snapshot_disabled")
		return nil
	}

	records, revision, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("service: restore snapshot: %w", err)
	}
	if err := s.registry.Restore(records, revision); err != nil {
		return fmt.Errorf("service: restore snapshot: %w", err)
	}
	s.persistMu.Lock()
	s.lastPersisted = revision
	s.persistMu.Unlock()

	log.Info().
		Str("node", s.cfg.ID).
		Int("accounts", len(records)).
		Uint64("revision", revision).
		Msg("snapshot_restored")
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.server.HTTPRouter(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("node", s.cfg.ID).Str("addr", s.cfg.ListenAddr).Msg("http_listening")
		serveErr <- httpSrv.ListenAndServe()
	}()

	controlErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminListenAddr) != "" {
		go func() {
			controlErr <- s.serveAdminControl(ctx, s.cfg.AdminListenAddr)
		}()
	}

	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("node", s.cfg.ID).Msg("shutdown_requested")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := httpSrv.Shutdown(shutdownCtx)
			cancel()
			if persistErr := s.persist(false); persistErr != nil {
				log.Error().Err(persistErr).Msg("shutdown_persist_failed")
			}
			return err
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case err := <-controlErr:
			if err != nil {
				return err
			}
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

func (s *Service) heartbeat() {
	stats := s.registry.Stats()
	observability.SetRegistryGauges(s.cfg.ID, stats.Accounts, stats.Expired)
	log.Info().
		Str("node", s.cfg.ID).
		Int("accounts", stats.Accounts).
		Int("expired", stats.Expired).
		Uint64("revision", stats.Revision).
		Int64("admin_clients", s.adminClientCount.Load()).
		Msg("heartbeat")

	if err := s.persist(false); err != nil {
		log.Error().Err(err).Msg("heartbeat_persist_failed")
	}
}

// persist saves a snapshot when the registry revision has advanced.
// force writes even at an unchanged revision.
func (s *Service) persist(force bool) error {
	if !s.store.Enabled() {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	records, revision := s.registry.Snapshot()
	if !force && revision == s.lastPersisted {
		return nil
	}
	if err := s.store.Save(records, revision); err != nil {
		return err
	}
	s.lastPersisted = revision
	log.Debug().
		Str("node", s.cfg.ID).
		Int("accounts", len(records)).
		Uint64("revision", revision).
		Msg("snapshot_saved")
	return nil
}

// AdminClientCount returns the number of attached admin control clients.
func (s *Service) AdminClientCount() int64 {
	return s.adminClientCount.Load()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, liveness.ErrNotFound):
		return "not_found"
	case errors.Is(err, liveness.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, liveness.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, liveness.ErrNotBackup):
		return "not_backup"
	case errors.Is(err, liveness.ErrNotExpired):
		return "not_expired"
	case errors.Is(err, liveness.ErrInvalidBackup):
		return "invalid_backup"
	case errors.Is(err, liveness.ErrInvalidTimeout):
		return "invalid_timeout"
	default:
		return "error"
	}
}
