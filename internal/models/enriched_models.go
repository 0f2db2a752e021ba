package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/tidwall/sjson"
)

const (
	KindQuestion = "question"
	KindAnswer   = "answer"
)

// ItemMetadata is copied from the envelope and only exists on question records.
type ItemMetadata struct {
	UpdatedOn *string `json:"metadata__updated_on"`
	Timestamp *string `json:"metadata__timestamp"`
	UniqueID  *string `json:"ocean-unique-id"`
	Origin    *string `json:"origin"`
}

// AnswerFields only exist on answer records.
type AnswerFields struct {
	IsAccepted *bool  `json:"is_accepted"`
	AnswerID   *int64 `json:"answer_id"`
}

// EnrichedRecord is the flat document written to the search index. Declared
// fields are never omitted: a value missing from the source serializes as
// null. Extra holds fields whose names are decided at runtime (the grimoire
// kind flag and identity resolution output) and is merged into the document,
// overriding declared fields on collision.
type EnrichedRecord struct {
	*ItemMetadata

	Type             string  `json:"type"`
	Author           *string `json:"author"`
	AuthorLink       *string `json:"author_link"`
	AuthorReputation *int64  `json:"author_reputation"`

	CommonFields
	*AnswerFields

	QuestionTitle        *string `json:"question_title"`
	GrimoireCreationDate *string `json:"grimoire_creation_date"`

	Extra map[string]any `json:"-"`
}

var (
	metadataFieldNames = []string{"metadata__updated_on", "metadata__timestamp", "ocean-unique-id", "origin"}
	authorFieldNames   = []string{"type", "author", "author_link", "author_reputation"}
	commonFieldNames   = []string{
		"title", "comments_count", "question_id", "creation_date",
		"delete_vote_count", "up_vote_count", "down_vote_count", "favorite_count",
		"view_count", "last_activity_date", "link", "score", "tags",
	}
	answerFieldNames  = []string{"is_accepted", "answer_id"}
	derivedFieldNames = []string{"question_title", "grimoire_creation_date"}
)

// RecordFieldNames lists the keys always present on a record of the given kind.
func RecordFieldNames(kind string) []string {
	var names []string
	if kind == KindQuestion {
		names = append(names, metadataFieldNames...)
	}
	names = append(names, authorFieldNames...)
	names = append(names, commonFieldNames...)
	if kind == KindAnswer {
		names = append(names, answerFieldNames...)
	}
	return append(names, derivedFieldNames...)
}

func (r EnrichedRecord) MarshalJSON() ([]byte, error) {
	type record EnrichedRecord

	doc, err := json.Marshal(record(r))
	if err != nil {
		return nil, err
	}

	for _, key := range slices.Sorted(maps.Keys(r.Extra)) {
		doc, err = sjson.SetBytes(doc, escapePath(key), r.Extra[key])
		if err != nil {
			return nil, fmt.Errorf("failed to merge field %q: %w", key, err)
		}
	}
	return doc, nil
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`)

func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
