// Package bootstrap wires the enricher and its backends from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spacesedan/stackenrich/config"
	"github.com/spacesedan/stackenrich/internal/clients"
	"github.com/spacesedan/stackenrich/internal/db"
	"github.com/spacesedan/stackenrich/internal/enrich"
	"github.com/spacesedan/stackenrich/internal/identity"
)

type Services struct {
	Enricher   *enrich.Enricher
	Opensearch *clients.Opensearch
	Identities *db.IdentityStore

	pool   *pgxpool.Pool
	valkey *clients.ValkeyClient
}

// Build connects to OpenSearch and, when identity enrichment is enabled, to
// the identity database and the optional Valkey cache.
func Build(ctx context.Context, cfg config.Config) (*Services, error) {
	osClient, err := clients.NewOpensearchClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Services{
		Opensearch: clients.NewOpensearch(osClient, cfg.EnrichIndex, cfg.MaxItemsBulk),
	}

	if !s.Opensearch.IsHealthy(ctx) {
		slog.Warn("[Bootstrap] OpenSearch cluster is not reporting healthy",
			slog.String("endpoint", cfg.OpensearchEndpoint))
	}

	var opts []enrich.Option
	if cfg.SortinghatEnabled {
		resolver, err := s.identityResolver(ctx, cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts = append(opts, enrich.WithIdentityResolver(resolver))
	}

	s.Enricher = enrich.NewEnricher(s.Opensearch, opts...)
	slog.Info("[Bootstrap] Enricher ready",
		slog.String("index", cfg.EnrichIndex),
		slog.Int("max_items_bulk", cfg.MaxItemsBulk),
		slog.Bool("sortinghat", s.Enricher.SortinghatEnabled()))
	return s, nil
}

func (s *Services) identityResolver(ctx context.Context, cfg config.Config) (*identity.Resolver, error) {
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("[Bootstrap] identity store unavailable: %w", err)
	}
	s.pool = pool
	s.Identities = db.NewIdentityStore(pool, enrich.ConnectorName)

	opts := []identity.ResolverOption{identity.WithStore(s.Identities)}
	if cfg.ValkeyAddress != "" {
		vc, err := clients.NewValkey(ctx, cfg)
		if err != nil {
			slog.Warn("[Bootstrap] Identity cache disabled",
				slog.String("error", err.Error()))
		} else {
			s.valkey = vc
			opts = append(opts, identity.WithCache(vc))
		}
	}

	return identity.NewResolver(enrich.ConnectorName, opts...), nil
}

func (s *Services) Close() {
	if s.valkey != nil {
		s.valkey.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
