package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spacesedan/stackenrich/internal/identity"
	"github.com/spacesedan/stackenrich/internal/models"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IdentityStore reads and registers identities in a sortinghat-style
// schema: identities point at a unique identity (uuid) whose profile and
// enrollments describe the person.
type IdentityStore struct {
	db     querier
	source string
}

func NewIdentityStore(db querier, source string) *IdentityStore {
	return &IdentityStore{db: db, source: source}
}

const lookupProfileQuery = `
	SELECT p.uuid, p.name, p.email, COALESCE(p.is_bot, false), org.name
	FROM identities i
	JOIN profiles p ON p.uuid = i.uuid
	LEFT JOIN LATERAL (
		SELECT o.name
		FROM enrollments e
		JOIN organizations o ON o.id = e.organization_id
		WHERE e.uuid = p.uuid AND e.start <= $2 AND e."end" >= $2
		ORDER BY e.start DESC
		LIMIT 1
	) org ON true
	WHERE i.id = $1
`

// LookupProfile returns the profile behind identityID with the organization
// the person was enrolled in at the given time. Unknown identities yield
// nil.
func (s *IdentityStore) LookupProfile(ctx context.Context, identityID string, at time.Time) (*identity.Profile, error) {
	var p identity.Profile
	err := s.db.QueryRow(ctx, lookupProfileQuery, identityID, at).
		Scan(&p.UUID, &p.Name, &p.Email, &p.IsBot, &p.OrgName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[DB] failed to look up identity %s: %w", identityID, err)
	}
	return &p, nil
}

// RegisterIdentities stores every new candidate as its own unique identity
// with a matching profile. Already known identities are left untouched. It
// returns the number of identities that were added.
func (s *IdentityStore) RegisterIdentities(ctx context.Context, candidates []models.IdentityCandidate) (int64, error) {
	type row struct {
		id string
		c  models.IdentityCandidate
	}

	seen := make(map[string]struct{}, len(candidates))
	rows := make([]row, 0, len(candidates))
	for _, c := range candidates {
		id, err := identity.UUID(s.source, c)
		if err != nil {
			return 0, fmt.Errorf("[DB] failed to compute identity id: %w", err)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, row{id: id, c: c})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	uuids := make([]any, 0, len(rows))
	profiles := make([]any, 0, len(rows)*3)
	identities := make([]any, 0, len(rows)*6)
	for _, r := range rows {
		uuids = append(uuids, r.id)
		profiles = append(profiles, r.id, r.c.Name, r.c.Email)
		identities = append(identities, r.id, r.id, r.c.Name, r.c.Email, r.c.Username, s.source)
	}

	statements := []struct {
		table   string
		columns string
		extra   string
		values  []any
		width   int
	}{
		{"uidentities", "(uuid, last_modified)", ", NOW()", uuids, 1},
		{"profiles", "(uuid, name, email, is_bot)", ", false", profiles, 3},
		{"identities", "(id, uuid, name, email, username, source, last_modified)", ", NOW()", identities, 6},
	}

	var added int64
	for _, st := range statements {
		query := fmt.Sprintf("INSERT INTO %s %s VALUES %s ON CONFLICT DO NOTHING",
			st.table, st.columns, placeholders(len(rows), st.width, st.extra))

		tag, err := s.db.Exec(ctx, query, st.values...)
		if err != nil {
			return 0, fmt.Errorf("[DB] failed to insert %s: %w", st.table, err)
		}
		if st.table == "identities" {
			added = tag.RowsAffected()
		}
	}

	slog.Info("[DB] Registered identities",
		slog.Int("candidates", len(candidates)),
		slog.Int64("added", added))
	return added, nil
}

// placeholders builds "($1, $2, NOW()), ($3, $4, NOW())" style value lists.
func placeholders(rows, width int, extra string) string {
	parts := make([]string, 0, rows)
	n := 1
	for range rows {
		cols := make([]string, 0, width)
		for range width {
			cols = append(cols, fmt.Sprintf("$%d", n))
			n++
		}
		parts = append(parts, "("+strings.Join(cols, ", ")+extra+")")
	}
	return strings.Join(parts, ", ")
}
