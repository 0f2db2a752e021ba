package enrich

import (
	"context"
	"maps"

	"github.com/spacesedan/stackenrich/internal/models"
)

// ProjectQuestion flattens the question carried by a raw item. A missing
// owner or title fails the projection; every other absent field is null.
func (e *Enricher) ProjectQuestion(ctx context.Context, item models.RawItem) (models.EnrichedRecord, error) {
	question := item.Data
	if question == nil {
		return models.EnrichedRecord{}, &models.MissingFieldError{Kind: "item", Field: "data"}
	}

	rec := models.EnrichedRecord{
		ItemMetadata: &models.ItemMetadata{
			UpdatedOn: clonePtr(item.UpdatedOn),
			Timestamp: clonePtr(item.Timestamp),
			UniqueID:  clonePtr(item.UniqueID),
			Origin:    clonePtr(item.Origin),
		},
		Type: models.KindQuestion,
	}

	if err := projectPost(&rec, question.Post, models.KindQuestion); err != nil {
		return models.EnrichedRecord{}, err
	}

	var updatedOn string
	if item.UpdatedOn != nil {
		updatedOn = *item.UpdatedOn
	}
	e.setGrimoireFields(&rec, updatedOn, models.KindQuestion)

	if err := e.mergeIdentity(ctx, &rec, question.Post); err != nil {
		return models.EnrichedRecord{}, err
	}
	return rec, nil
}

// ProjectAnswer flattens a single answer. Answers carry no envelope so no
// metadata fields are copied.
func (e *Enricher) ProjectAnswer(ctx context.Context, answer models.RawAnswer) (models.EnrichedRecord, error) {
	rec := models.EnrichedRecord{
		Type: models.KindAnswer,
		AnswerFields: &models.AnswerFields{
			IsAccepted: clonePtr(answer.IsAccepted),
			AnswerID:   clonePtr(answer.AnswerID),
		},
	}

	if err := projectPost(&rec, answer.Post, models.KindAnswer); err != nil {
		return models.EnrichedRecord{}, err
	}

	var created string
	if answer.CreationDate != nil {
		created = isoformat(e.fromTimestamp(*answer.CreationDate), false)
	}
	e.setGrimoireFields(&rec, created, models.KindAnswer)

	if err := e.mergeIdentity(ctx, &rec, answer.Post); err != nil {
		return models.EnrichedRecord{}, err
	}
	return rec, nil
}

// projectPost fills the fields questions and answers have in common: author
// fields from the owner, the copied allow-list and the renamed title.
func projectPost(rec *models.EnrichedRecord, post models.Post, kind string) error {
	owner := post.Owner
	if owner == nil {
		return &models.MissingFieldError{Kind: kind, Field: "owner"}
	}
	if !owner.HasDisplayName() {
		return &models.MissingFieldError{Kind: kind, Field: "owner.display_name"}
	}
	rec.Author = clonePtr(owner.DisplayName)
	rec.AuthorLink = clonePtr(owner.Link)
	rec.AuthorReputation = clonePtr(owner.Reputation)

	rec.CommonFields = post.CommonFields.Clone()

	for _, rename := range renamedFields {
		if !rename.present(post) {
			return &models.MissingFieldError{Kind: kind, Field: rename.from}
		}
		rename.set(rec, clonePtr(rename.get(post)))
	}
	return nil
}

// renamedFields are copied under a new name. Unlike the allow-list the key
// must be present on the source, though its value may be null.
var renamedFields = []struct {
	from    string
	present func(models.Post) bool
	get     func(models.Post) *string
	set     func(*models.EnrichedRecord, *string)
}{
	{
		from:    "title",
		present: models.Post.HasTitle,
		get:     func(p models.Post) *string { return p.Title },
		set:     func(r *models.EnrichedRecord, v *string) { r.QuestionTitle = v },
	},
}

func (e *Enricher) mergeIdentity(ctx context.Context, rec *models.EnrichedRecord, post models.Post) error {
	if !e.SortinghatEnabled() {
		return nil
	}
	fields, err := e.ShFields(ctx, post)
	if err != nil {
		return err
	}
	if rec.Extra == nil {
		rec.Extra = make(map[string]any, len(fields))
	}
	maps.Copy(rec.Extra, fields)
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
