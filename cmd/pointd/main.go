package main

import (
	"flag"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pointchain/config"
	"pointchain/core/state"
	"pointchain/native/bridge"
	"pointchain/native/ledger"
	"pointchain/native/link"
	"pointchain/native/quorum"
	"pointchain/native/rates"
	"pointchain/native/shop"
	"pointchain/observability/logging"
	"pointchain/observability/metrics"
	"pointchain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("POINT_ENV"))
	logger := logging.Setup("pointd", env, "")

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.LogPath != "" {
		logger = logging.Setup("pointd", cfg.Environment, cfg.LogPath)
	}

	genesis, err := config.LoadGenesis(cfg.GenesisFile)
	if err != nil {
		logger.Error("Failed to load genesis", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("Failed to open state database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node, err := buildNode(db, genesis)
	if err != nil {
		logger.Error("Failed to assemble ledger node", slog.Any("error", err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	counters := metrics.NewLedger(registry)
	node.WireMetrics(counters)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	logger.Info("pointd started",
		slog.String("network", cfg.NetworkName),
		slog.String("dataDir", cfg.DataDir),
		slog.Int("validators", node.Validators.ActiveCount()),
		slog.Int("bridgeThreshold", node.Bridge.Threshold()),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("pointd shutting down")
	_ = server.Close()
}

// Node bundles the wired engines so callers (and tests) can reach every
// component behind one value.
type Node struct {
	State      *state.Manager
	Validators *quorum.Set
	Rates      *rates.Registry
	Links      *link.Registry
	Shops      *shop.Registry
	Ledger     *ledger.Engine
	Bridge     *bridge.Engine
}

func buildNode(db storage.Database, genesis *config.Genesis) (*Node, error) {
	manager := state.NewManager(db)

	validatorAddrs, err := genesis.ValidatorAddresses()
	if err != nil {
		return nil, err
	}
	validators := quorum.NewSet(validatorAddrs)

	certifiers, err := genesis.CertifierAddresses()
	if err != nil {
		return nil, err
	}
	for _, certifier := range certifiers {
		if err := manager.SetRole(shop.RoleCertifier, certifier); err != nil {
			return nil, err
		}
	}

	foundation, err := genesis.Account(genesis.Foundation)
	if err != nil {
		return nil, err
	}
	feeAccount, err := genesis.Account(genesis.FeeAccount)
	if err != nil {
		return nil, err
	}
	bridgeAccount, err := genesis.Account(genesis.BridgeAccount)
	if err != nil {
		return nil, err
	}

	if reserve := strings.TrimSpace(genesis.FoundationReserve); reserve != "" {
		amount, ok := new(big.Int).SetString(reserve, 10)
		if !ok {
			return nil, errInvalidReserve(reserve)
		}
		acc, err := manager.GetAccount(foundation)
		if err != nil {
			return nil, err
		}
		if acc.TokenBalance.Sign() == 0 {
			acc.TokenBalance = amount
			if err := manager.PutAccount(foundation, acc); err != nil {
				return nil, err
			}
		}
	}

	rateRegistry := rates.NewRegistry(manager, validators, genesis.BaseCurrency)
	linkRegistry := link.NewRegistry(manager, validators)
	shopRegistry := shop.NewRegistry(manager)
	ledgerEngine := ledger.NewEngine(manager, shopRegistry, linkRegistry, rateRegistry, validators, ledger.Config{
		Foundation:  foundation,
		FeeAccount:  feeAccount,
		FeeRate:     genesis.FeeRate,
		TokenSymbol: genesis.TokenSymbol,
	})
	bridgeEngine := bridge.NewEngine(manager, validators, bridgeAccount, genesis.BridgeThreshold)

	return &Node{
		State:      manager,
		Validators: validators,
		Rates:      rateRegistry,
		Links:      linkRegistry,
		Shops:      shopRegistry,
		Ledger:     ledgerEngine,
		Bridge:     bridgeEngine,
	}, nil
}

// WireMetrics routes every engine's events through the counting emitter.
func (n *Node) WireMetrics(counters *metrics.Ledger) {
	emitter := metrics.NewEmitter(nil, counters)
	n.Rates.SetEmitter(emitter)
	n.Links.SetEmitter(emitter)
	n.Shops.SetEmitter(emitter)
	n.Ledger.SetEmitter(emitter)
	n.Bridge.SetEmitter(emitter)
}

type errInvalidReserve string

func (e errInvalidReserve) Error() string {
	return "pointd: invalid foundationReserve amount: " + string(e)
}
