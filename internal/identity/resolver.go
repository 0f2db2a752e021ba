package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spacesedan/stackenrich/internal/models"
)

const UnknownOrganization = "Unknown"

// Profile is what the identity store knows about a unique identity.
type Profile struct {
	UUID    string
	Name    *string
	Email   *string
	IsBot   bool
	OrgName *string
}

type Store interface {
	// LookupProfile returns nil without error when the identity is unknown.
	LookupProfile(ctx context.Context, identityID string, at time.Time) (*Profile, error)
}

type Cache interface {
	GetIdentityFields(ctx context.Context, key string) (map[string]any, bool, error)
	SetIdentityFields(ctx context.Context, key string, fields map[string]any) error
}

// Resolver turns identity candidates into the author_* fields stored on
// enriched records.
type Resolver struct {
	source string
	store  Store
	cache  Cache
}

type ResolverOption func(*Resolver)

func WithStore(s Store) ResolverOption {
	return func(r *Resolver) { r.store = s }
}

func WithCache(c Cache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

func NewResolver(source string, opts ...ResolverOption) *Resolver {
	r := &Resolver{source: source}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, candidate models.IdentityCandidate, observedAt time.Time) (map[string]any, error) {
	id, err := UUID(r.source, candidate)
	if err != nil {
		return nil, fmt.Errorf("[IdentityResolver] failed to compute identity id: %w", err)
	}

	key := CacheKey(id, observedAt)
	if r.cache != nil {
		fields, ok, err := r.cache.GetIdentityFields(ctx, key)
		if err != nil {
			slog.Warn("[IdentityResolver] Cache lookup failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		} else if ok {
			return fields, nil
		}
	}

	var profile *Profile
	if r.store != nil {
		profile, err = r.store.LookupProfile(ctx, id, observedAt)
		if err != nil {
			return nil, fmt.Errorf("[IdentityResolver] failed to look up identity %s: %w", id, err)
		}
	}

	fields := itemFields(id, candidate, profile)

	if r.cache != nil {
		if err := r.cache.SetIdentityFields(ctx, key, fields); err != nil {
			slog.Warn("[IdentityResolver] Failed to cache identity fields",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
	return fields, nil
}

func itemFields(id string, candidate models.IdentityCandidate, profile *Profile) map[string]any {
	fields := map[string]any{
		"author_id":        id,
		"author_uuid":      id,
		"author_name":      deref(candidate.Name),
		"author_user_name": deref(candidate.Username),
		"author_domain":    domainOf(candidate.Email),
		"author_org_name":  UnknownOrganization,
		"author_bot":       false,
	}
	if profile == nil {
		return fields
	}

	if profile.UUID != "" {
		fields["author_uuid"] = profile.UUID
	}
	if profile.Name != nil {
		fields["author_name"] = *profile.Name
	}
	if domain := domainOf(profile.Email); domain != nil {
		fields["author_domain"] = domain
	}
	if profile.OrgName != nil {
		fields["author_org_name"] = *profile.OrgName
	}
	fields["author_bot"] = profile.IsBot
	return fields
}

func domainOf(email *string) any {
	if email == nil {
		return nil
	}
	_, domain, ok := strings.Cut(*email, "@")
	if !ok || domain == "" {
		return nil
	}
	return domain
}

// CacheKey scopes cached fields to a day since the organization depends on
// the date the identity was observed.
func CacheKey(id string, observedAt time.Time) string {
	return fmt.Sprintf("stackenrich:identity:%s:%s", id, observedAt.UTC().Format(time.DateOnly))
}
