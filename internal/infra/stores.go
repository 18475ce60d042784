package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/congo-pay/crossbank/internal/config"
	"github.com/congo-pay/crossbank/internal/store"
)

const defaultStoreTimeout = 5 * time.Second

// Stores is an opened store topology. Close releases every connection it
// opened.
type Stores struct {
	Registry *store.Registry
	// Memory exposes memory backends by name, for seeding and inspection.
	Memory map[store.Handle]*store.MemoryBackend

	closers []func()
}

// Close releases pools and clients in reverse open order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStores builds a backend for every configured store, in file order.
// Connections are shared between stores that use the same DSN. Postgres
// stores without a DSN use databaseURL.
func OpenStores(ctx context.Context, topo config.Stores, databaseURL string, logger *slog.Logger) (*Stores, error) {
	s := &Stores{Memory: make(map[store.Handle]*store.MemoryBackend)}
	pools := make(map[string]*pgxpool.Pool)
	clients := make(map[string]*mongo.Client)

	defs := make([]store.Definition, 0, len(topo.Stores))
	for _, sc := range topo.Stores {
		h := store.Handle(sc.Name)
		var backend store.Backend

		switch sc.Kind {
		case config.KindMemory:
			mem := store.NewMemoryBackend()
			for _, a := range sc.Accounts {
				mem.Seed(store.SeedAccount{
					AccountID:   a.AccountID,
					RoutingCode: firstNonEmpty(a.RoutingCode, sc.RoutingCode),
					Name:        a.Name,
					Balance:     a.Balance,
					Status:      seedStatus(a.Status),
					Unlisted:    a.Unlisted,
				})
			}
			s.Memory[h] = mem
			backend = mem

		case config.KindPostgres:
			dsn := firstNonEmpty(sc.DSN, databaseURL)
			pool, ok := pools[dsn]
			if !ok {
				var err error
				pool, err = NewPostgresPool(ctx, dsn)
				if err != nil {
					s.Close()
					return nil, fmt.Errorf("store %s: %w", sc.Name, err)
				}
				pools[dsn] = pool
				s.closers = append(s.closers, pool.Close)
			}
			backend = store.NewPostgresBackend(pool)

		case config.KindMongo:
			client, ok := clients[sc.DSN]
			if !ok {
				var err error
				client, err = NewMongoClient(ctx, sc.DSN)
				if err != nil {
					s.Close()
					return nil, fmt.Errorf("store %s: %w", sc.Name, err)
				}
				clients[sc.DSN] = client
				s.closers = append(s.closers, func() { _ = client.Disconnect(context.Background()) })
			}
			backend = store.NewMongoBackend(client.Database(sc.Database), sc.Collections)

		case config.KindDocStore:
			doc, err := store.NewDocStoreBackend(store.DocStoreConfig{
				BaseURL:     sc.URL,
				APIKey:      sc.APIKey,
				Timeout:     sc.TimeoutOr(defaultStoreTimeout),
				Collections: sc.Collections,
			})
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("store %s: %w", sc.Name, err)
			}
			backend = doc

		default:
			s.Close()
			return nil, fmt.Errorf("store %s: unknown kind %q", sc.Name, sc.Kind)
		}

		if sc.Breaker != nil {
			backend = store.NewBreakerBackend(h, backend, sc.Breaker.Settings(), logger)
		}
		defs = append(defs, store.Definition{
			Handle:      h,
			RoutingCode: sc.RoutingCode,
			Role:        topo.StoreRole(sc),
			Backend:     backend,
		})
		logger.Info("store opened", slog.String("store", sc.Name), slog.String("kind", sc.Kind), slog.Bool("breaker", sc.Breaker != nil))
	}

	reg, err := store.NewRegistry(defs...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Registry = reg
	return s, nil
}

func seedStatus(raw string) store.AccountStatus {
	if raw == "" {
		return store.StatusActive
	}
	return store.ParseStatus(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
