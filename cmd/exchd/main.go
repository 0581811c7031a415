package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dmelnik/spotcore/params"
	"github.com/dmelnik/spotcore/pkg/api"
	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/account"
	"github.com/dmelnik/spotcore/pkg/core/engine"
	"github.com/dmelnik/spotcore/pkg/core/instrument"
	"github.com/dmelnik/spotcore/pkg/core/ledger"
	"github.com/dmelnik/spotcore/pkg/storage"
	"github.com/dmelnik/spotcore/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLoggerWithFile(cfg.Storage.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		sugar.Fatalw("open_store", "path", cfg.Storage.DBPath, "err", err)
	}
	defer store.Close()

	var journal engine.Journal
	if cfg.Storage.JournalPath != "" {
		fj, err := storage.NewFileJournal(cfg.Storage.JournalPath)
		if err != nil {
			sugar.Fatalw("open_journal", "path", cfg.Storage.JournalPath, "err", err)
		}
		defer fj.Close()
		journal = fj
	}

	clock := util.RealClock{}

	// ---- Rebuild state from the durable store ----
	registry := instrument.NewRegistry()
	instruments, err := store.LoadInstruments()
	if err != nil {
		sugar.Fatalw("load_instruments", "err", err)
	}
	for _, ins := range instruments {
		if err := registry.Register(ins); err != nil {
			sugar.Fatalw("register_instrument", "ticker", ins.Ticker, "err", err)
		}
	}

	led := ledger.NewLedger()
	balances, err := store.LoadBalances()
	if err != nil {
		sugar.Fatalw("load_balances", "err", err)
	}
	led.Restore(balances)

	users := account.NewManager(store, clock)
	loaded, err := store.LoadUsers()
	if err != nil {
		sugar.Fatalw("load_users", "err", err)
	}
	users.Restore(loaded)

	eng := engine.New(cfg.Exchange.CashTicker, registry, led, store, journal, clock, sugar)
	eng.SetTradeRetention(cfg.Exchange.MaxTradeLimit)

	orders, err := store.LoadOrders()
	if err != nil {
		sugar.Fatalw("load_orders", "err", err)
	}
	trades := make(map[string][]core.Trade)
	for _, ins := range registry.List() {
		ts, err := store.LoadTrades(ins.Ticker, cfg.Exchange.MaxTradeLimit)
		if err != nil {
			sugar.Fatalw("load_trades", "ticker", ins.Ticker, "err", err)
		}
		trades[ins.Ticker] = ts
	}
	eng.Restore(orders, trades)

	// The cash ticker is itself an instrument so deposits and balance queries
	// address it uniformly.
	if _, err := registry.Get(cfg.Exchange.CashTicker); err != nil {
		if err := eng.AddInstrument(cfg.Exchange.CashTicker, cfg.Exchange.CashTicker); err != nil {
			sugar.Fatalw("register_cash_ticker", "err", err)
		}
	}

	bootstrapAdmin(users, sugar)

	sugar.Infow("state_restored",
		"users", len(loaded),
		"instruments", len(registry.List()),
		"orders", len(orders),
	)

	srv := api.NewServer(eng, users, sugar, api.Options{
		MaxDepthLevels: cfg.Exchange.MaxDepthLevels,
		MaxTradeLimit:  cfg.Exchange.MaxTradeLimit,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	go func() {
		if err := srv.Start(cfg.HTTP.Addr); err != nil {
			sugar.Fatalw("api_server", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	sugar.Infow("shutting_down")
}

// bootstrapAdmin creates the initial admin account on first boot when
// ADMIN_NAME is set and no user of that name exists. The generated api key
// is logged once; rotate by removing the user and rebooting.
func bootstrapAdmin(users *account.Manager, sugar *zap.SugaredLogger) {
	name := os.Getenv("ADMIN_NAME")
	if name == "" {
		return
	}
	u, err := users.Register(name, os.Getenv("ADMIN_PASSWORD"), account.RoleAdmin)
	if err != nil {
		sugar.Warnw("admin_bootstrap_skipped", "name", name, "err", err)
		return
	}
	sugar.Infow("admin_created", "name", name, "api_key", u.APIKey)
}
