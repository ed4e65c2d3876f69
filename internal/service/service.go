// Package service assembles the ledgers, their custody state and the HTTP
// API from a configuration, and runs them until shutdown.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/minx-network/distribution/config"
	"github.com/minx-network/distribution/internal/clock"
	"github.com/minx-network/distribution/internal/custody"
	"github.com/minx-network/distribution/internal/journal"
	"github.com/minx-network/distribution/internal/journal/memory"
	"github.com/minx-network/distribution/internal/journal/postgres"
	"github.com/minx-network/distribution/internal/sale"
	"github.com/minx-network/distribution/internal/server"
	"github.com/minx-network/distribution/internal/statedb"
	"github.com/minx-network/distribution/internal/swap"
	"github.com/minx-network/distribution/internal/tokenomics"
	"github.com/minx-network/distribution/internal/vesting"
)

const ShutdownTimeout = 10 * time.Second

// Snapshot names inside the state database.
const (
	clockSnapshot   = "clock"
	vestingSnapshot = "vesting"
	saleSnapshot    = "sale"
	swapSnapshot    = "swap"
)

// Service owns every component of a running distribution node.
type Service struct {
	cfg    *config.Config
	logger log.Logger

	db        *statedb.Database
	state     *custody.State
	token     *custody.Token
	swapToken *custody.Token
	clock     clock.Clock

	vesting *vesting.Ledger
	sale    *sale.Ledger
	swap    *swap.Ledger

	store  journal.Store
	writer *journal.Writer
	server *server.Server

	// gate lets checkpoints see ledgers and custody state at a request
	// boundary. Requests hold it shared.
	gate sync.RWMutex
}

type clockState struct {
	Now uint64 `json:"now"`
}

// New opens storage, restores or deploys the ledgers, and builds the API.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.Root()
	}
	s := &Service{cfg: cfg, logger: logger}

	// Release whatever was opened if a later step fails
	success := false
	defer func() {
		if !success {
			s.Close()
		}
	}()

	var err error
	if s.db, err = statedb.Open(cfg.StorageDir); err != nil {
		return nil, err
	}
	if s.state, err = custody.NewState(s.db); err != nil {
		return nil, err
	}
	s.token, s.swapToken = Tokens(s.state, cfg)
	if err := Genesis(s.token, s.swapToken, cfg, logger); err != nil {
		return nil, err
	}
	if err := s.openClock(); err != nil {
		return nil, err
	}
	if err := s.openJournal(ctx); err != nil {
		return nil, err
	}
	if err := s.openLedgers(); err != nil {
		return nil, err
	}

	s.server = server.New(server.Config{
		Tokens:     []*custody.Token{s.token, s.swapToken},
		Vesting:    s.vesting,
		Sale:       s.sale,
		Swap:       s.swap,
		Clock:      s.clock,
		Journal:    s.store,
		Logger:     logger.With("component", "api"),
		Middleware: []mux.MiddlewareFunc{s.shared},
	})
	success = true
	return s, nil
}

func (s *Service) shared(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.gate.RLock()
		defer s.gate.RUnlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Service) openClock() error {
	if !s.cfg.Clock.Manual {
		s.clock = clock.System{}
		return nil
	}
	manual := clock.NewManual(s.cfg.Clock.Start)
	var saved clockState
	ok, err := s.db.ReadSnapshot(clockSnapshot, &saved)
	if err != nil {
		return err
	}
	if ok {
		manual.Set(saved.Now)
	}
	s.logger.Info("Using manual clock", "now", manual.Now())
	s.clock = manual
	return nil
}

func (s *Service) openJournal(ctx context.Context) error {
	jc := s.cfg.Journal
	if jc.DSN == "" {
		s.store = memory.NewStore()
	} else {
		pool, err := postgres.NewPool(ctx, jc.DSN)
		if err != nil {
			return err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return err
		}
		s.store = postgres.NewStore(pool)
		s.logger.Info("Journal stored in postgres")
	}
	s.writer = journal.NewWriter(s.store,
		journal.WithBuffer(jc.Buffer),
		journal.WithBatch(jc.BatchSize, jc.FlushInterval()),
		journal.WithWriterLogger(s.logger.With("component", "journal")),
	)
	return nil
}

func (s *Service) openLedgers() error {
	tn, err := tokenomics.Load(s.cfg.TokenomicsPath)
	if err != nil {
		return err
	}
	owner := s.cfg.Owner
	opts := func(name string) []vesting.Option {
		return []vesting.Option{
			vesting.WithName(name),
			vesting.WithLogger(s.logger),
			vesting.WithRecorder(s.writer),
		}
	}

	s.vesting = vesting.NewLedger(custody.NewVault(s.token, s.cfg.Ledgers.Vesting), s.clock, owner, opts(vestingSnapshot)...)

	strategic, err := tn.Template(s.cfg.StrategicAllocation)
	if err != nil {
		return err
	}
	if s.sale, err = sale.NewLedger(custody.NewVault(s.token, s.cfg.Ledgers.Sale), strategic, s.clock, owner, opts(saleSnapshot)...); err != nil {
		return fmt.Errorf("create sale ledger: %w", err)
	}

	private, err := tn.Template(s.cfg.PrivateAllocation)
	if err != nil {
		return err
	}
	// A restored swap keeps the close time it was deployed with.
	var ps swap.State
	hasSwap, err := s.db.ReadSnapshot(swapSnapshot, &ps)
	if err != nil {
		return err
	}
	s.swap, err = swap.NewLedger(swap.Params{
		Primary:      custody.NewVault(s.token, s.cfg.Ledgers.Swap),
		Secondary:    custody.NewVault(s.swapToken, s.cfg.Ledgers.Swap),
		Ratio:        s.cfg.Swap.Ratio,
		TotalAmount:  private.TotalAmount,
		Template:     private,
		SaleDuration: s.cfg.Swap.SaleDurationSec,
		SaleEnd:      ps.SaleEnd,
	}, s.clock, owner, opts(swapSnapshot)...)
	if err != nil {
		return fmt.Errorf("create swap ledger: %w", err)
	}

	restored, err := s.restore(&ps, hasSwap)
	if err != nil {
		return err
	}
	if restored {
		s.logger.Info("Restored ledgers", "vesting", len(s.vesting.Beneficiaries()),
			"sale", len(s.sale.Beneficiaries()), "swap", len(s.swap.Buyers()))
		return nil
	}
	if err := s.deploy(tn, strategic, private); err != nil {
		return err
	}
	return s.Checkpoint()
}

// restore loads every ledger snapshot. It reports false when none exist.
func (s *Service) restore(ps *swap.State, hasSwap bool) (bool, error) {
	var vs vesting.State
	ok, err := s.db.ReadSnapshot(vestingSnapshot, &vs)
	if err != nil || !ok {
		return false, err
	}
	if err := s.vesting.Restore(&vs); err != nil {
		return false, fmt.Errorf("restore vesting ledger: %w", err)
	}

	var ss sale.State
	if _, err := s.db.ReadSnapshot(saleSnapshot, &ss); err != nil {
		return false, err
	}
	if err := s.sale.Restore(&ss); err != nil {
		return false, fmt.Errorf("restore sale ledger: %w", err)
	}

	if !hasSwap {
		return false, errors.New("swap snapshot missing")
	}
	if err := s.swap.Restore(ps); err != nil {
		return false, fmt.Errorf("restore swap ledger: %w", err)
	}
	return true, nil
}

// Checkpoint commits the custody state and writes every ledger snapshot
// while no request is in flight.
func (s *Service) Checkpoint() error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if manual, ok := s.clock.(*clock.Manual); ok {
		if err := s.db.WriteSnapshot(clockSnapshot, clockState{Now: manual.Now()}); err != nil {
			return err
		}
	}
	if err := s.db.WriteSnapshot(vestingSnapshot, s.vesting.State()); err != nil {
		return err
	}
	if err := s.db.WriteSnapshot(saleSnapshot, s.sale.State()); err != nil {
		return err
	}
	if err := s.db.WriteSnapshot(swapSnapshot, s.swap.State()); err != nil {
		return err
	}
	root, err := s.state.Commit()
	if err != nil {
		return err
	}
	s.logger.Debug("Checkpoint written", "root", root)
	return nil
}

// Handler returns the API handler.
func (s *Service) Handler() http.Handler {
	return s.server.Router()
}

func (s *Service) Vesting() *vesting.Ledger { return s.vesting }

func (s *Service) Sale() *sale.Ledger { return s.sale }

func (s *Service) Swap() *swap.Ledger { return s.swap }

func (s *Service) Token() *custody.Token { return s.token }

func (s *Service) SwapToken() *custody.Token { return s.swapToken }

func (s *Service) Clock() clock.Clock { return s.clock }

// Run serves the API, flushes the journal and checkpoints periodically until
// ctx is cancelled. A final checkpoint is written on the way out.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.server.Start(fmt.Sprintf(":%d", s.cfg.Port))
	})
	g.Go(func() error {
		return s.writer.Run(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.CommitInterval())
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := s.Checkpoint(); err != nil {
					s.logger.Error("Checkpoint failed", "err", err)
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := s.Checkpoint(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if dropped := s.writer.Dropped(); dropped > 0 {
		s.logger.Warn("Journal events dropped", "count", dropped)
	}
	return err
}

// Close releases the journal store and the state database.
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
