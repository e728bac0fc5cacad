package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/SmithChan/universe-dao-contracts/params"
	"github.com/SmithChan/universe-dao-contracts/pkg/amm"
	"github.com/SmithChan/universe-dao-contracts/pkg/api"
	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
	"github.com/SmithChan/universe-dao-contracts/pkg/storage"
	"github.com/SmithChan/universe-dao-contracts/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	var logger *zap.Logger
	var err error
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Storage ----
	store, err := storage.NewOrderStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("open_store_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	// ---- Swap venue ----
	venue := amm.NewVenue(cfg.Orders.DecimalScale, cfg.Orders.PercentScale)
	if pool := demoPoolFromEnv(); pool != nil {
		if err := venue.AddPool(pool); err != nil {
			sugar.Fatalw("add_pool_failed", "err", err)
		}
		sugar.Infow("pool_registered",
			"addr", pool.Addr.Hex(), "tokenA", pool.TokenA, "tokenB", pool.TokenB,
			"reserveA", pool.ReserveA, "reserveB", pool.ReserveB)
	}

	// ---- Order service ----
	owner := common.HexToAddress(os.Getenv("SERVICE_OWNER"))
	svc, err := orders.NewService(cfg.Orders, store, venue, owner, sugar)
	if err != nil {
		sugar.Fatalw("service_init_failed", "err", err)
	}
	sugar.Infow("service_ready",
		"owner", svc.Admin().Owner.Hex(), "enabled", svc.Admin().Enabled,
		"max_orders", cfg.Orders.MaxOrdersPerAccount)

	// ---- API ----
	server := api.NewServer(svc, amm.NewExecutor(venue), sugar)
	go func() {
		if err := server.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Infow("shutting_down")
}

// demoPoolFromEnv builds the bootstrap pool when POOL_ADDR is set.
// POOL_TOKEN_A / POOL_TOKEN_B name the pair, POOL_RESERVE_A /
// POOL_RESERVE_B seed the reserves.
func demoPoolFromEnv() *amm.Pool {
	addr := os.Getenv("POOL_ADDR")
	if addr == "" || !common.IsHexAddress(addr) {
		return nil
	}
	reserveA, _ := strconv.ParseInt(os.Getenv("POOL_RESERVE_A"), 10, 64)
	reserveB, _ := strconv.ParseInt(os.Getenv("POOL_RESERVE_B"), 10, 64)
	return &amm.Pool{
		Addr:     common.HexToAddress(addr),
		TokenA:   orders.Token(os.Getenv("POOL_TOKEN_A")),
		TokenB:   orders.Token(os.Getenv("POOL_TOKEN_B")),
		ReserveA: reserveA,
		ReserveB: reserveB,
	}
}
