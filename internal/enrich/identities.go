package enrich

import (
	"context"
	"maps"

	"github.com/spacesedan/stackenrich/internal/models"
)

// Identities returns one candidate per owner in the item: the question owner
// first (skipped when absent or empty), then each answer owner in order.
// Candidates are not deduplicated.
func (e *Enricher) Identities(item models.RawItem) ([]models.IdentityCandidate, error) {
	question := item.Data
	if question == nil {
		return nil, &models.MissingFieldError{Kind: "item", Field: "data"}
	}

	identities := make([]models.IdentityCandidate, 0, len(question.Answers)+1)

	if !question.Owner.IsZero() {
		identity, err := shIdentity(question.Owner, models.KindQuestion)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}

	for _, answer := range question.Answers {
		identity, err := shIdentity(answer.Owner, models.KindAnswer)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, nil
}

// ShFields resolves the identity fields for the owner of post. It returns an
// empty map when the post has no owner.
func (e *Enricher) ShFields(ctx context.Context, post models.Post) (map[string]any, error) {
	fields := map[string]any{}
	if post.Owner == nil || e.resolver == nil {
		return fields, nil
	}

	if post.LastActivityDate == nil {
		return nil, &models.MissingFieldError{Kind: "post", Field: "last_activity_date"}
	}
	updateDate := e.fromTimestamp(*post.LastActivityDate)

	identity, err := shIdentity(post.Owner, "post")
	if err != nil {
		return nil, err
	}

	resolved, err := e.resolver.Resolve(ctx, identity, updateDate)
	if err != nil {
		return nil, err
	}
	maps.Copy(fields, resolved)
	return fields, nil
}

// shIdentity uses the display name as both username and name. A null
// display name yields a candidate with nil fields.
func shIdentity(owner *models.Owner, kind string) (models.IdentityCandidate, error) {
	if owner == nil {
		return models.IdentityCandidate{}, &models.MissingFieldError{Kind: kind, Field: "owner"}
	}
	if !owner.HasDisplayName() {
		return models.IdentityCandidate{}, &models.MissingFieldError{Kind: kind, Field: "owner.display_name"}
	}
	return models.IdentityCandidate{
		Username: clonePtr(owner.DisplayName),
		Email:    nil,
		Name:     clonePtr(owner.DisplayName),
	}, nil
}
