package enrich

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/spacesedan/stackenrich/internal/models"
	"github.com/spacesedan/stackenrich/internal/utils"
)

const (
	ConnectorName = "stackexchange"
	bulkPath      = "/items/_bulk"
)

// BulkTransport is the indexing backend the enricher writes to.
type BulkTransport interface {
	IndexURL() string
	MaxItemsBulk() int
	Put(ctx context.Context, url string, body []byte) error
}

// IdentityResolver expands an identity candidate into the identity fields
// merged into every record. The field set is owned by the resolver.
type IdentityResolver interface {
	Resolve(ctx context.Context, candidate models.IdentityCandidate, observedAt time.Time) (map[string]any, error)
}

type Enricher struct {
	transport BulkTransport
	resolver  IdentityResolver
	location  *time.Location
}

type Option func(*Enricher)

// WithIdentityResolver enables identity enrichment of every record.
func WithIdentityResolver(r IdentityResolver) Option {
	return func(e *Enricher) {
		e.resolver = r
	}
}

// WithLocation sets the zone epoch timestamps are converted into. Defaults
// to the process local zone.
func WithLocation(loc *time.Location) Option {
	return func(e *Enricher) {
		if loc != nil {
			e.location = loc
		}
	}
}

func NewEnricher(transport BulkTransport, opts ...Option) *Enricher {
	e := &Enricher{
		transport: transport,
		location:  time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Enricher) SortinghatEnabled() bool {
	return e.resolver != nil
}

// FieldDate names the field orchestrators use as the record's update date.
func (e *Enricher) FieldDate() string {
	return "metadata__updated_on"
}

// FieldUniqueID names the field that identifies a question.
func (e *Enricher) FieldUniqueID() string {
	return "question_id"
}

// EnrichItems projects every raw item (question first, then its answers) and
// writes the records to the backend in bulk requests. The batch threshold is
// checked only between top-level items so a question is never split from its
// answers. Whatever remains after the stream ends is always submitted, even
// when nothing is left.
func (e *Enricher) EnrichItems(ctx context.Context, items iter.Seq2[models.RawItem, error]) error {
	if e.transport == nil {
		return errors.New("[Enricher] no bulk transport configured")
	}

	maxItems := max(e.transport.MaxItemsBulk(), 1)
	url := e.transport.IndexURL() + bulkPath

	slog.Debug("[Enricher] Adding items",
		slog.String("url", url),
		slog.Int("max_items_bulk", maxItems))

	encoder := utils.NewBulkEncoder()
	total := 0

	for item, err := range items {
		if err != nil {
			return fmt.Errorf("[Enricher] failed to read raw item: %w", err)
		}

		if encoder.Len() >= maxItems {
			if err := e.submit(ctx, url, encoder); err != nil {
				return err
			}
		}

		n, err := e.appendItem(ctx, encoder, item)
		if err != nil {
			return err
		}
		total += n
	}

	if err := e.submit(ctx, url, encoder); err != nil {
		return err
	}

	slog.Info("[Enricher] Finished enriching items",
		slog.String("url", url),
		slog.Int("records", total))
	return nil
}

func (e *Enricher) appendItem(ctx context.Context, encoder *utils.BulkEncoder, item models.RawItem) (int, error) {
	question, err := e.ProjectQuestion(ctx, item)
	if err != nil {
		return 0, fmt.Errorf("[Enricher] failed to enrich question %s: %w", describeItem(item), err)
	}
	if question.QuestionID == nil {
		return 0, &models.MissingFieldError{Kind: models.KindQuestion, Field: e.FieldUniqueID()}
	}
	questionID := strconv.FormatInt(*question.QuestionID, 10)

	if err := encoder.Append(questionID, question); err != nil {
		return 0, err
	}
	appended := 1

	for _, answer := range item.Data.Answers {
		rich, err := e.ProjectAnswer(ctx, answer)
		if err != nil {
			return appended, fmt.Errorf("[Enricher] failed to enrich answer of question %s: %w", questionID, err)
		}
		if rich.QuestionID == nil {
			return appended, &models.MissingFieldError{Kind: models.KindAnswer, Field: e.FieldUniqueID()}
		}
		if rich.AnswerID == nil {
			return appended, &models.MissingFieldError{Kind: models.KindAnswer, Field: "answer_id"}
		}

		// Answers are addressed by the question id they carry themselves.
		if err := encoder.Append(fmt.Sprintf("%d_%d", *rich.QuestionID, *rich.AnswerID), rich); err != nil {
			return appended, err
		}
		appended++
	}
	return appended, nil
}

func (e *Enricher) submit(ctx context.Context, url string, encoder *utils.BulkEncoder) error {
	count := encoder.Len()
	body := encoder.Flush()

	slog.Info("[Enricher] Submitting bulk request",
		slog.String("url", url),
		slog.Int("items", count),
		slog.Int("bytes", len(body)))

	if err := e.transport.Put(ctx, url, body); err != nil {
		return fmt.Errorf("[Enricher] bulk request with %d items to %s failed: %w", count, url, err)
	}
	return nil
}

func describeItem(item models.RawItem) string {
	if item.UniqueID != nil {
		return *item.UniqueID
	}
	if item.Data != nil && item.Data.QuestionID != nil {
		return strconv.FormatInt(*item.Data.QuestionID, 10)
	}
	return "<unknown>"
}
