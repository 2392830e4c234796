package main

import (
	"context"
	"fmt"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ciphernode/delegation-relayer/metrics"
	"github.com/ciphernode/delegation-relayer/relayer-app/config"
	apisrv "github.com/ciphernode/delegation-relayer/server/api"
	apimw "github.com/ciphernode/delegation-relayer/server/api/middleware"
	"github.com/ciphernode/delegation-relayer/x/passrunner"
	"github.com/ciphernode/delegation-relayer/x/relay"
	"github.com/ciphernode/delegation-relayer/x/relay/contracts"
	"github.com/ciphernode/delegation-relayer/x/relay/store/pgxstore"
)

// App wires the relay pipeline to its database, chain clients and ops server.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	pool         *pgxpool.Pool
	orchestrator *relay.Orchestrator
	runner       passrunner.PassRunner
	apiServer    *apisrv.Server

	shutdownFns []func() error
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg: cfg,
		log: log.With().Str("component", "app").Logger(),
	}

	if err := app.initialize(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (a *App) initialize(ctx context.Context) error {
	poolCfg, err := pgxpool.ParseConfig(a.cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	if a.cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = a.cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect queue database: %w", err)
	}
	a.pool = pool

	store, storeCloser := pgxstore.New(pool)
	a.shutdownFns = append(a.shutdownFns, func() error { storeCloser(); return nil })
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	hostClient, err := ethclient.DialContext(ctx, a.cfg.HostChain.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("dial host chain: %w", err)
	}
	a.shutdownFns = append(a.shutdownFns, func() error { hostClient.Close(); return nil })

	gatewayClient, err := ethclient.DialContext(ctx, a.cfg.Gateway.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("dial gateway chain: %w", err)
	}
	a.shutdownFns = append(a.shutdownFns, func() error { gatewayClient.Close(); return nil })

	binding, err := contracts.NewAccessControllerBinding(a.cfg.Gateway.AccessController)
	if err != nil {
		return err
	}

	chainID := new(big.Int).SetUint64(a.cfg.Relay.GatewayChainID)
	signer, err := relay.NewLocalECDSASignerFromHex(chainID, a.cfg.Gateway.PrivateKeyHex)
	if err != nil {
		return fmt.Errorf("parse gateway signing key: %w", err)
	}

	relayMetrics := relay.NewMetrics()
	nonces := relay.NewNonceManager(gatewayClient, signer.Address())
	sender := relay.NewSender(
		a.cfg.Relay, gatewayClient, binding, signer, nonces, relayMetrics, a.log,
	)
	notifier := relay.NewHeightNotifier(
		a.cfg.Relay, relay.NewPgListener(pool), hostClient, a.log,
	)

	orchestrator, err := relay.NewOrchestrator(relay.OrchestratorConfig{
		Settings: a.cfg.Relay,
		Logger:   a.log,
		DB:       store,
		Store:    store,
		Host:     hostClient,
		Heights:  notifier,
		Engine:   sender,
		Metrics:  relayMetrics,
	})
	if err != nil {
		return err
	}
	a.orchestrator = orchestrator
	a.shutdownFns = append(a.shutdownFns, func() error { orchestrator.Close(); return nil })

	runnerCfg := passrunner.DefaultConfig(a.log)
	runnerCfg.Handler = orchestrator.RunPass
	a.runner = passrunner.NewLocalPassRunner(runnerCfg)

	a.apiServer = apisrv.NewServer(a.cfg.API, a.log)
	a.apiServer.Use(apimw.RequestID())
	a.apiServer.Use(apimw.Logger(a.log))
	a.apiServer.Use(apimw.Recover(a.log))
	if a.cfg.Metrics.Enabled {
		a.apiServer.RegisterOps(metrics.DefaultRegistry())
	}

	return nil
}

// Run starts the pipeline and blocks until the context ends or a signal
// arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiErr := make(chan error, 1)
	go func() {
		apiErr <- a.apiServer.Start(ctx)
	}()

	if err := a.runner.Start(ctx); err != nil {
		return err
	}
	a.log.Info().Msg("delegation relayer started")

	select {
	case <-ctx.Done():
	case err := <-apiErr:
		if err != nil {
			a.log.Error().Err(err).Msg("ops server failed")
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.runner.Stop(stopCtx); err != nil {
		a.log.Error().Err(err).Msg("pass runner did not stop cleanly")
	}
	a.close()
	a.log.Info().Msg("delegation relayer stopped")
	return nil
}

func (a *App) close() {
	for i := len(a.shutdownFns) - 1; i >= 0; i-- {
		if err := a.shutdownFns[i](); err != nil {
			a.log.Error().Err(err).Msg("shutdown step failed")
		}
	}
	a.shutdownFns = nil
}
