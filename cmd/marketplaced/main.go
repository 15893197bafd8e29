package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dopepandaorg/dp-marketplace-contracts/config"
	"github.com/dopepandaorg/dp-marketplace-contracts/core"
	"github.com/dopepandaorg/dp-marketplace-contracts/core/events"
	"github.com/dopepandaorg/dp-marketplace-contracts/observability/logging"
	"github.com/dopepandaorg/dp-marketplace-contracts/rpc"
	"github.com/dopepandaorg/dp-marketplace-contracts/storage"
)

// eventLogger surfaces contract events from accepted groups on the service
// log. Indexers subscribe here in larger deployments.
type eventLogger struct {
	logger *slog.Logger
}

func (e eventLogger) Emit(evt events.Event) {
	e.logger.Info("contract event", slog.String("type", evt.EventType()))
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	logger := logging.Setup("marketplaced", os.Getenv("DP_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	processor := core.NewProcessor(db, cfg.Params())
	processor.SetEmitter(eventLogger{logger: logger})

	metricsAddr := cfg.MetricsAddress
	if metricsAddr == "" {
		metricsAddr = config.Default().MetricsAddress
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("starting metrics server", slog.String("addr", metricsAddr))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	rpcAddr := cfg.RPCAddress
	if rpcAddr == "" {
		rpcAddr = config.Default().RPCAddress
	}
	server := rpc.NewServer(processor, logger)
	if err := server.Start(rpcAddr); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
