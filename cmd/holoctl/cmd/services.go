package cmd

import (
	"context"
	"log/slog"

	"github.com/holographxyz/holograph-sub000/internal/audit"
	"github.com/holographxyz/holograph-sub000/internal/chain"
	"github.com/holographxyz/holograph-sub000/internal/database"
	"github.com/holographxyz/holograph-sub000/internal/repository"
)

// cachePrefix namespaces holoctl keys in a shared redis.
const cachePrefix = "holograph"

// closers releases resources in reverse order of acquisition.
type closers []func()

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// pinger is a backend that can report its health.
type pinger interface {
	Ping(ctx context.Context) error
}

// backends are the optional stores behind an auditor.
type backends struct {
	closers
	checks map[string]pinger
}

// Ready pings every backend and names the first one that fails.
func (b *backends) Ready(ctx context.Context) (string, error) {
	for _, name := range []string{"redis", "database"} {
		p, ok := b.checks[name]
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			return name, err
		}
	}
	return "", nil
}

// newAuditor builds an auditor from the protocol config, backed by the
// redis cache and Postgres archive when they are configured.
func (a *app) newAuditor(ctx context.Context, logger *slog.Logger, chains ...*chain.Client) (*audit.Auditor, *backends, error) {
	done := &backends{checks: make(map[string]pinger)}

	factory, err := a.factory()
	if err != nil {
		return nil, nil, err
	}
	code, err := a.enforcerBytecode()
	if err != nil {
		return nil, nil, err
	}
	registry, err := a.registry()
	if err != nil {
		return nil, nil, err
	}

	opts := []audit.Option{audit.WithLogger(logger), audit.WithRegistry(registry)}
	for _, c := range chains {
		opts = append(opts, audit.WithChain(c))
	}

	if a.cfg.Redis.Enabled() {
		r, err := database.NewRedis(ctx, a.cfg.Redis, cachePrefix)
		if err != nil {
			return nil, nil, err
		}
		done.closers = append(done.closers, func() { _ = r.Close() })
		done.checks["redis"] = r
		opts = append(opts, audit.WithCache(r, a.cfg.Audit.CacheTTL))
		logger.Debug("audit cache enabled", slog.String("addr", a.cfg.Redis.Addr()))
	}

	if a.cfg.Database.Enabled() && a.cfg.Audit.Archive {
		if err := database.Migrate(a.cfg.Database); err != nil {
			done.Close()
			return nil, nil, err
		}
		pg, err := database.NewPostgres(ctx, a.cfg.Database)
		if err != nil {
			done.Close()
			return nil, nil, err
		}
		done.closers = append(done.closers, pg.Close)
		done.checks["database"] = pg
		opts = append(opts, audit.WithStore(repository.NewReportRepository(pg.Pool())))
		logger.Debug("audit archive enabled", slog.String("database", a.cfg.Database.Database))
	}

	return audit.New(factory, code, opts...), done, nil
}

// dialChains connects to every configured chain. Unreachable chains are
// logged and skipped.
func (a *app) dialChains(ctx context.Context, logger *slog.Logger) ([]*chain.Client, closers) {
	var (
		clients []*chain.Client
		done    closers
	)
	for _, cc := range a.cfg.Chains {
		c, err := chain.Dial(ctx, cc, chain.WithLogger(logger))
		if err != nil {
			logger.Warn("skipping chain",
				slog.String("chain", cc.Name),
				slog.Uint64("chain_id", cc.ChainID),
				slog.String("error", err.Error()),
			)
			continue
		}
		clients = append(clients, c)
		done = append(done, func() { _ = c.Close() })
	}
	return clients, done
}
