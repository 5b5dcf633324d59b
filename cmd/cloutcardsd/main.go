// cloutcardsd is the Clout Cards trusted backend: the signed event log,
// escrow ledger, poker engine, chain bridge and HTTP/SSE surface in one
// process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/Layr-Labs/clout-cards-sub002/internal/chain"
	"github.com/Layr-Labs/clout-cards-sub002/internal/config"
	"github.com/Layr-Labs/clout-cards-sub002/internal/db"
	"github.com/Layr-Labs/clout-cards-sub002/internal/distributor"
	"github.com/Layr-Labs/clout-cards-sub002/internal/escrow"
	"github.com/Layr-Labs/clout-cards-sub002/internal/evtlog"
	"github.com/Layr-Labs/clout-cards-sub002/internal/poker"
	"github.com/Layr-Labs/clout-cards-sub002/internal/scheduler"
	"github.com/Layr-Labs/clout-cards-sub002/internal/server"
	"github.com/Layr-Labs/clout-cards-sub002/internal/signer"
)

func main() {
	lg := logrus.New()
	lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(lg); err != nil {
		lg.WithError(err).Fatal("cloutcardsd failed to start")
	}
}

func run(lg *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, err := signer.FromMnemonic(cfg.Mnemonic, cfg.ChainID)
	if err != nil {
		return fmt.Errorf("derive trusted key: %w", err)
	}
	lg.WithFields(logrus.Fields{
		"address": key.Address().Hex(),
		"chainId": cfg.ChainID,
	}).Info("trusted key ready")

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	log := evtlog.New(key, cfg.TEEVersion)
	ledger := escrow.NewLedger(pool, log, lg)

	var (
		bridge      *chain.Bridge
		contract    *chain.Contract
		withdrawals *escrow.WithdrawalSigner
	)
	if cfg.ContractAddress != "" {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("dial rpc %s: %w", cfg.RPCURL, err)
		}
		defer client.Close()
		contract, err = chain.NewContract(client, common.HexToAddress(cfg.ContractAddress))
		if err != nil {
			return err
		}
		bridge = chain.NewBridge(client, contract, ledger, log, pool, lg)
		withdrawals = escrow.NewWithdrawalSigner(ledger, key, contract)
		go bridge.Run(ctx)
		lg.WithField("contract", cfg.ContractAddress).Info("chain listener enabled")
	} else {
		lg.Warn("CLOUTCARDS_CONTRACT_ADDRESS unset; chain listener and withdrawals disabled")
	}

	store := poker.NewStore()
	svc := poker.NewService(pool, store, ledger, log, lg, key.Address().Hex())

	dist := distributor.New(pool, lg)
	go dist.Run(ctx)

	sched := scheduler.New(svc, lg)
	go sched.Run(ctx)

	srv := server.New(cfg, pool, log, ledger, withdrawals, svc, dist, bridge, contract, key.Address(), lg)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.WithField("port", cfg.AppPort).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
