// Command chainclaw wires the Durable Store, the Chain Client Registry,
// every business-logic component, and the background job engines into one
// process, generalizing the teacher's cmd/main.go (one RPC, one recorder,
// one strategy loop) into the full startup/shutdown sequence spec.md §5
// describes.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chainclaw-xyz/chainclaw/internal/chainreg"
	"github.com/chainclaw-xyz/chainclaw/internal/config"
	"github.com/chainclaw-xyz/chainclaw/internal/dca"
	"github.com/chainclaw-xyz/chainclaw/internal/delivery"
	"github.com/chainclaw-xyz/chainclaw/internal/executor"
	"github.com/chainclaw-xyz/chainclaw/internal/guardrail"
	"github.com/chainclaw-xyz/chainclaw/internal/limitorder"
	"github.com/chainclaw-xyz/chainclaw/internal/lock"
	"github.com/chainclaw-xyz/chainclaw/internal/logging"
	"github.com/chainclaw-xyz/chainclaw/internal/nonce"
	"github.com/chainclaw-xyz/chainclaw/internal/reconcile"
	"github.com/chainclaw-xyz/chainclaw/internal/risk"
	"github.com/chainclaw-xyz/chainclaw/internal/signals"
	"github.com/chainclaw-xyz/chainclaw/internal/simulate"
	"github.com/chainclaw-xyz/chainclaw/internal/snipe"
	"github.com/chainclaw-xyz/chainclaw/internal/store"
	"github.com/chainclaw-xyz/chainclaw/internal/whale"
	"github.com/chainclaw-xyz/chainclaw/pkg/signer"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
	"github.com/chainclaw-xyz/chainclaw/pkg/util"
)

func main() {
	log := logging.New("chainclaw", logging.LevelInfo)

	_ = godotenv.Load() // optional: populates ENC_PK/KEY from a local .env when present, matching the teacher's test-time secret loading

	if len(os.Args) > 2 && os.Args[1] == "encrypt-key" {
		runEncryptKey(log, os.Args[2])
		return
	}

	configPath := "configs/config.yml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	conf, err := config.Load(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}
	log = logging.New("chainclaw", logging.ParseLevel(conf.LogLevel))
	types.SetDefaultUserLimits(types.UserLimits{
		MaxPerTxUSD:     conf.DefaultLimits.MaxPerTxUSD,
		MaxPerDayUSD:    conf.DefaultLimits.MaxPerDayUSD,
		CooldownSeconds: conf.DefaultLimits.CooldownSeconds,
		SlippageBps:     conf.DefaultLimits.SlippageBps,
	})

	encPK, key, err := conf.EncryptedPrivateKey()
	if err != nil {
		log.Errorf("failed to read operator key material: %v", err)
		os.Exit(1)
	}
	rawPK, err := util.Decrypt([]byte(key), encPK)
	if err != nil {
		log.Errorf("failed to decrypt operator private key: %v", err)
		os.Exit(1)
	}

	db, err := store.Open(filepath.Join(conf.DataDir, "chainclaw.db"))
	if err != nil {
		log.Errorf("failed to open store: %v", err)
		os.Exit(1)
	}
	registry := chainreg.New()
	ctx, cancel := context.WithCancel(context.Background())
	for chainID, cc := range conf.Chains {
		rpcURL := cc.RPCURL
		if rpcURL == "" {
			rpcURL = cc.DefaultRPCURL
		}
		if err := registry.Register(ctx, chainID, rpcURL, 3*time.Second, 2*time.Minute); err != nil {
			log.Errorf("failed to register chain %d: %v", chainID, err)
			os.Exit(1)
		}
	}
	chains := registry.Get

	operatorSigner := signer.New(rawPK, chains, true)

	locks := lock.New()
	nonces := nonce.New()
	guardrails := guardrail.New(db)
	simulator := simulate.New(nil) // external dry-run service wired per deployment; nil degrades to the local gas-estimate fallback
	riskEngine := risk.New(db, nil, 5*time.Minute) // external risk oracle wired per deployment; cache never refreshes until one is set
	gasOpt := executor.NewStaticGasOptimizer()
	mevRouter := executor.NewStaticMEVRouter(conf.MEV.Enabled, conf.MEV.RelayerRPCByChain)

	exec := executor.New(db, locks, simulator, riskEngine, guardrails, nonces, chains, gasOpt, mevRouter)

	deliveries := delivery.New(db, 5)
	noopSend := func(ctx context.Context, entry types.DeliveryQueueEntry) error {
		log.Infof("delivery (no channel adapter configured): %s -> %s: %s", entry.Channel, entry.RecipientID, entry.Message)
		return nil
	}
	if err := deliveries.RecoverPending(ctx, noopSend); err != nil {
		log.Warnf("delivery recovery pass failed: %v", err)
	}

	if n, err := reconcile.Run(ctx, db, chains); err != nil {
		log.Warnf("receipt-timeout reconciliation failed: %v", err)
	} else if n > 0 {
		log.Infof("reconciled %d timed-out transaction(s) against chain state", n)
	}

	dcaSignerFor := func(job types.DcaJob) (types.Signer, error) { return operatorSigner, nil }
	limitOrderSignerFor := func(order types.LimitOrder) (types.Signer, error) { return operatorSigner, nil }
	whaleSignerFor := func(watch types.WhaleWatch) (types.Signer, error) { return operatorSigner, nil }

	dcaScheduler := dca.New(db, nil, nil, exec, dcaSignerFor, time.Duration(conf.Poll.DCAIntervalSeconds)*time.Second)
	limitOrderWatcher := limitorder.New(db, nil, nil, exec, limitOrderSignerFor, time.Duration(conf.Poll.LimitOrderIntervalSeconds)*time.Second)

	routers, err := whale.NewRouterRegistry(nil)
	if err != nil {
		log.Errorf("failed to build router registry: %v", err)
		os.Exit(1)
	}
	whaleWatcher := whale.New(db, chains, nil, nil, deliveries, riskEngine, routers, exec, whaleSignerFor, time.Duration(conf.Poll.WhaleIntervalSeconds)*time.Second)

	signalsEngine, err := signals.New(db, chains, deliveries, nil)
	if err != nil {
		log.Errorf("failed to build signals engine: %v", err)
		os.Exit(1)
	}

	snipeManager := snipe.New(db, riskEngine, simulator, nil, exec, 20)
	_ = snipeManager // invoked per-request from the external interface layer, not a background loop

	chainIDs := make([]int64, 0, len(conf.Chains))
	for id := range conf.Chains {
		chainIDs = append(chainIDs, id)
	}

	var wg sync.WaitGroup
	runEngine := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("starting %s engine", name)
			fn(ctx)
			log.Infof("%s engine stopped", name)
		}()
	}
	runEngine("dca", dcaScheduler.Run)
	runEngine("limit_order", limitOrderWatcher.Run)
	runEngine("whale", func(ctx context.Context) { whaleWatcher.Run(ctx, chainIDs) })
	runEngine("signals", func(ctx context.Context) {
		interval := time.Duration(conf.Poll.SignalsIntervalSeconds) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		notify := func(userID, message string) error {
			_, err := deliveries.Enqueue("signal", userID, message)
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := signalsEngine.Poll(ctx, notify); err != nil {
					log.Warnf("signals poll failed: %v", err)
				}
			}
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("shutdown signal received, draining background engines")

	cancel() // stage (a)+(b): inbound work sees ctx.Done(); poll loops exit their select/for

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Infof("all engines stopped cleanly")
	case <-time.After(conf.ShutdownTimeout()):
		log.Warnf("shutdown timeout of %s elapsed, exiting without waiting further", conf.ShutdownTimeout())
	}

	registry.Close() // stage (c)
	if err := db.Close(); err != nil {
		log.Errorf("failed to close store cleanly: %v", err)
	}
	log.Infof("shutdown complete")
}

// runEncryptKey is the operator-side provisioning step: encrypt a raw
// private key under KEY so the result can be stored as ENC_PK, the
// counterpart to the Decrypt call main() makes at startup.
func runEncryptKey(log *logging.Logger, rawPK string) {
	key := os.Getenv("KEY")
	if key == "" {
		log.Errorf("KEY environment variable must be set to encrypt under")
		os.Exit(1)
	}
	encrypted, err := util.Encrypt([]byte(key), rawPK)
	if err != nil {
		log.Errorf("failed to encrypt private key: %v", err)
		os.Exit(1)
	}
	println(encrypted)
}
