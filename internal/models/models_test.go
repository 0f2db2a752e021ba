package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const rawItemJSON = `{
	"metadata__updated_on": "2016-05-30T13:33:29+00:00",
	"metadata__timestamp": "2016-06-01T10:00:00+00:00",
	"ocean-unique-id": "abc123",
	"origin": "https://stackoverflow.com/questions/tagged/go",
	"data": {
		"title": "How do I close a channel?",
		"question_id": 100,
		"tags": ["go", "channels"],
		"owner": {"display_name": "gopher", "link": "https://so/u/1", "reputation": 42},
		"answers": [
			{"answer_id": 7, "question_id": 100, "is_accepted": true, "owner": {"display_name": "rob"}}
		]
	}
}`

func TestParseRawItem(t *testing.T) {
	item, err := ParseRawItem([]byte(rawItemJSON))
	require.NoError(t, err)

	require.NotNil(t, item.Data)
	assert.Equal(t, "abc123", *item.UniqueID)
	assert.Equal(t, int64(100), *item.Data.QuestionID)
	assert.Equal(t, "gopher", *item.Data.Owner.DisplayName)
	assert.Nil(t, item.Data.ViewCount)
	require.Len(t, item.Data.Answers, 1)
	assert.Equal(t, int64(7), *item.Data.Answers[0].AnswerID)
	assert.True(t, *item.Data.Answers[0].IsAccepted)
}

func TestParseRawItem_InvalidJSON(t *testing.T) {
	_, err := ParseRawItem([]byte(`{"data":`))
	assert.Error(t, err)
}

func TestDecodeRawItems_JSONLines(t *testing.T) {
	input := `{"ocean-unique-id": "a", "data": {}}
{"ocean-unique-id": "b", "data": {}}
`
	var ids []string
	for item, err := range DecodeRawItems(strings.NewReader(input)) {
		require.NoError(t, err)
		ids = append(ids, *item.UniqueID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestDecodeRawItems_StopsOnError(t *testing.T) {
	input := `{"ocean-unique-id": "a"} {"ocean-unique-id": `

	var seen int
	var lastErr error
	for _, err := range DecodeRawItems(strings.NewReader(input)) {
		if err != nil {
			lastErr = err
			continue
		}
		seen++
	}
	assert.Equal(t, 1, seen)
	assert.Error(t, lastErr)
}

func TestOwner_IsZero(t *testing.T) {
	name := "gopher"
	assert.True(t, (*Owner)(nil).IsZero())
	assert.True(t, (&Owner{}).IsZero())
	assert.False(t, (&Owner{DisplayName: &name}).IsZero())
}

func TestCommonFields_CloneDoesNotAlias(t *testing.T) {
	score := int64(3)
	orig := CommonFields{Score: &score, Tags: []string{"go"}}

	clone := orig.Clone()
	*clone.Score = 10
	clone.Tags[0] = "rust"

	assert.Equal(t, int64(3), *orig.Score)
	assert.Equal(t, "go", orig.Tags[0])
}

func TestMissingFieldError(t *testing.T) {
	var err error = &MissingFieldError{Kind: KindAnswer, Field: "title"}

	assert.True(t, errors.Is(err, ErrMissingField))
	assert.EqualError(t, err, `missing required field "title" in answer`)

	var mfe *MissingFieldError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, "title", mfe.Field)
}

func TestEnrichedRecord_MarshalJSON_FullyKeyed(t *testing.T) {
	tests := []struct {
		kind   string
		record EnrichedRecord
		absent []string
	}{
		{
			kind:   KindQuestion,
			record: EnrichedRecord{ItemMetadata: &ItemMetadata{}, Type: KindQuestion},
			absent: []string{"is_accepted", "answer_id"},
		},
		{
			kind:   KindAnswer,
			record: EnrichedRecord{AnswerFields: &AnswerFields{}, Type: KindAnswer},
			absent: []string{"metadata__updated_on", "ocean-unique-id", "origin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			doc, err := tt.record.MarshalJSON()
			require.NoError(t, err)

			for _, name := range RecordFieldNames(tt.kind) {
				assert.True(t, gjson.GetBytes(doc, escapePath(name)).Exists(), "missing key %s", name)
			}
			for _, name := range tt.absent {
				assert.False(t, gjson.GetBytes(doc, name).Exists(), "unexpected key %s", name)
			}
			assert.Equal(t, gjson.Null, gjson.GetBytes(doc, "view_count").Type)
			assert.Equal(t, tt.kind, gjson.GetBytes(doc, "type").String())
		})
	}
}

func TestEnrichedRecord_MarshalJSON_MergesExtra(t *testing.T) {
	author := "gopher"
	rec := EnrichedRecord{
		Type:   KindQuestion,
		Author: &author,
		Extra: map[string]any{
			"is_stackexchange_question": 1,
			"author_org_name":           "Unknown",
			"author":                    "canonical gopher",
			"odd.key":                   true,
		},
	}

	doc, err := rec.MarshalJSON()
	require.NoError(t, err)

	assert.Equal(t, int64(1), gjson.GetBytes(doc, "is_stackexchange_question").Int())
	assert.Equal(t, "Unknown", gjson.GetBytes(doc, "author_org_name").String())
	assert.Equal(t, "canonical gopher", gjson.GetBytes(doc, "author").String())
	assert.True(t, gjson.GetBytes(doc, `odd\.key`).Bool())
}

func TestKeyPresence(t *testing.T) {
	item, err := ParseRawItem([]byte(`{"data":{"title":null,"owner":{"display_name":null},
		"answers":[{"owner":{"link":"x"}}]}}`))
	require.NoError(t, err)

	assert.True(t, item.Data.HasTitle())
	assert.True(t, item.Data.Owner.HasDisplayName())
	assert.False(t, item.Data.Owner.IsZero())

	answer := item.Data.Answers[0]
	assert.False(t, answer.HasTitle())
	assert.False(t, answer.Owner.HasDisplayName())

	title := "t"
	assert.True(t, Post{CommonFields: CommonFields{Title: &title}}.HasTitle())
	assert.False(t, (*Owner)(nil).HasDisplayName())
}
