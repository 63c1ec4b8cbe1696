package infrastructure

import (
	"context"

	"crowdtest/internal/config"
	"crowdtest/internal/repository"
	"crowdtest/internal/service"
	transportHTTP "crowdtest/internal/transport/http"
	transportNATS "crowdtest/internal/transport/nats"
	"crowdtest/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, db.Close)

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, nc.Close)

	store := repository.NewStore(db)
	auth := repository.NewAuthorizer(db)
	cache := repository.NewCache(rdb)
	bus := transportNATS.NewBus(nc)

	escrow := service.NewEscrow(store, auth, bus, cache)
	wallets := service.NewWallets(store, auth, bus, cache)
	missions := service.NewMissions(store, auth, bus)

	servers := []Server{
		transportHTTP.NewServer(cfg.ApiAddr(), escrow, wallets, missions),
		worker.NewRefundWorker(escrow, nc),
		worker.NewNotifierWorker(missions, nc),
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
