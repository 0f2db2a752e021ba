package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/spacesedan/stackenrich/internal/models"
)

// actionIDs returns the _id of every action line in a bulk body.
func actionIDs(body string) []string {
	var ids []string
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	for i := 0; i+1 < len(lines); i += 2 {
		ids = append(ids, gjson.Get(lines[i], "index._id").String())
	}
	return ids
}

func TestEnrichItems_FlushBoundary(t *testing.T) {
	transport := &fakeTransport{indexURL: "http://localhost:9200/stackexchange", max: 2}
	items := []models.RawItem{rawItem(1), rawItem(2), rawItem(3)}

	err := NewEnricher(transport).EnrichItems(context.Background(), models.Items(items))
	require.NoError(t, err)

	require.Len(t, transport.calls, 2)
	assert.Equal(t, "http://localhost:9200/stackexchange/items/_bulk", transport.calls[0].url)
	assert.Equal(t, []string{"1", "2"}, actionIDs(transport.calls[0].body))
	assert.Equal(t, []string{"3"}, actionIDs(transport.calls[1].body))
}

func TestEnrichItems_AnswerAddressing(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 100}
	items := []models.RawItem{rawItem(100, answer(100, 7, "rob"))}

	require.NoError(t, NewEnricher(transport).EnrichItems(context.Background(), models.Items(items)))

	require.Len(t, transport.calls, 1)
	body := transport.calls[0].body
	assert.Equal(t, []string{"100", "100_7"}, actionIDs(body))

	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `{"index":{"_id":"100_7"}}`, lines[2])
	assert.Equal(t, "answer", gjson.Get(lines[3], "type").String())
}

func TestEnrichItems_NeverSplitsAnswersFromQuestion(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 2}
	items := []models.RawItem{
		rawItem(1, answer(1, 10, "rob"), answer(1, 11, "ken")),
		rawItem(2),
		rawItem(3, answer(3, 30, "rob")),
	}

	require.NoError(t, NewEnricher(transport).EnrichItems(context.Background(), models.Items(items)))

	require.Len(t, transport.calls, 2)
	assert.Equal(t, []string{"1", "1_10", "1_11"}, actionIDs(transport.calls[0].body))
	assert.Equal(t, []string{"2", "3", "3_30"}, actionIDs(transport.calls[1].body))
}

func TestEnrichItems_EmptyStreamStillFlushes(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 2}

	require.NoError(t, NewEnricher(transport).EnrichItems(context.Background(), models.Items(nil)))

	require.Len(t, transport.calls, 1)
	assert.Empty(t, transport.calls[0].body)
}

func TestEnrichItems_OneItemPerBatch(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 1}
	items := []models.RawItem{rawItem(1), rawItem(2)}

	require.NoError(t, NewEnricher(transport).EnrichItems(context.Background(), models.Items(items)))

	require.Len(t, transport.calls, 2)
	assert.Equal(t, []string{"1"}, actionIDs(transport.calls[0].body))
	assert.Equal(t, []string{"2"}, actionIDs(transport.calls[1].body))
}

func TestEnrichItems_TransportErrorPropagates(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 1, failOn: 1}
	items := []models.RawItem{rawItem(1), rawItem(2), rawItem(3)}

	err := NewEnricher(transport).EnrichItems(context.Background(), models.Items(items))

	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset by peer")
	assert.Len(t, transport.calls, 1, "no further batches after a failed submission")
}

func TestEnrichItems_ProjectionErrorAborts(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 10}
	broken := rawItem(2)
	broken.Data.Owner = nil

	err := NewEnricher(transport).EnrichItems(context.Background(), models.Items([]models.RawItem{rawItem(1), broken}))

	assert.ErrorIs(t, err, models.ErrMissingField)
	assert.ErrorContains(t, err, "ocean-2")
	assert.Empty(t, transport.calls)
}

func TestEnrichItems_MissingQuestionID(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 10}
	item := rawItem(1)
	item.Data.QuestionID = nil

	err := NewEnricher(transport).EnrichItems(context.Background(), models.Items([]models.RawItem{item}))
	assert.ErrorIs(t, err, models.ErrMissingField)
}

func TestEnrichItems_StreamErrorPropagates(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 10}
	stream := func(yield func(models.RawItem, error) bool) {
		if !yield(rawItem(1), nil) {
			return
		}
		yield(models.RawItem{}, errors.New("unexpected end of JSON input"))
	}

	err := NewEnricher(transport).EnrichItems(context.Background(), stream)

	assert.ErrorContains(t, err, "unexpected end of JSON input")
	assert.Empty(t, transport.calls)
}

func TestEnrichItems_NoTransport(t *testing.T) {
	err := NewEnricher(nil).EnrichItems(context.Background(), models.Items([]models.RawItem{rawItem(1)}))
	assert.Error(t, err)
}

func TestEnricher_MetadataContract(t *testing.T) {
	e := NewEnricher(nil)
	assert.Equal(t, "metadata__updated_on", e.FieldDate())
	assert.Equal(t, "question_id", e.FieldUniqueID())
	assert.False(t, e.SortinghatEnabled())
	assert.True(t, NewEnricher(nil, WithIdentityResolver(&fakeResolver{})).SortinghatEnabled())
}

func TestEnricher_ElasticMappings(t *testing.T) {
	mappings := NewEnricher(nil).ElasticMappings()

	require.Contains(t, mappings, "items")
	require.True(t, gjson.Valid(mappings["items"]))
	assert.Equal(t, "string", gjson.Get(mappings["items"], "properties.title_analyzed.type").String())
	assert.Equal(t, "analyzed", gjson.Get(mappings["items"], "properties.title_analyzed.index").String())
}

func TestEnrichItems_AnswerAddressedByOwnQuestionID(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 100}
	items := []models.RawItem{rawItem(100, answer(200, 7, "rob"))}

	require.NoError(t, NewEnricher(transport).EnrichItems(context.Background(), models.Items(items)))

	require.Len(t, transport.calls, 1)
	assert.Equal(t, []string{"100", "200_7"}, actionIDs(transport.calls[0].body))
}

func TestEnrichItems_AnswerWithoutQuestionID(t *testing.T) {
	transport := &fakeTransport{indexURL: "/stackexchange", max: 100}
	broken := answer(100, 7, "rob")
	broken.QuestionID = nil

	err := NewEnricher(transport).EnrichItems(context.Background(), models.Items([]models.RawItem{rawItem(100, broken)}))
	assert.ErrorIs(t, err, models.ErrMissingField)
	assert.ErrorContains(t, err, "question_id")
}
