package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"

	"github.com/tidwall/gjson"
)

// RawItem is a perceval-style envelope around one StackExchange question.
type RawItem struct {
	UpdatedOn *string      `json:"metadata__updated_on"`
	Timestamp *string      `json:"metadata__timestamp"`
	UniqueID  *string      `json:"ocean-unique-id"`
	Origin    *string      `json:"origin"`
	Data      *RawQuestion `json:"data"`
}

type Owner struct {
	DisplayName *string `json:"display_name"`
	Link        *string `json:"link"`
	Reputation  *int64  `json:"reputation"`

	// set when decoded from JSON
	hasKeys        bool
	hasDisplayName bool
}

func (o *Owner) UnmarshalJSON(data []byte) error {
	type owner Owner
	var v owner
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Owner(v)

	obj := gjson.ParseBytes(data)
	o.hasKeys = len(obj.Map()) > 0
	o.hasDisplayName = obj.Get("display_name").Exists()
	return nil
}

// IsZero reports whether the owner carries no data at all. The platform sends
// an empty object for some deleted accounts.
func (o *Owner) IsZero() bool {
	return o == nil || (!o.hasKeys && o.DisplayName == nil && o.Link == nil && o.Reputation == nil)
}

// HasDisplayName reports whether display_name was sent, even as null.
func (o *Owner) HasDisplayName() bool {
	return o != nil && (o.DisplayName != nil || o.hasDisplayName)
}

// CommonFields are copied as-is from both questions and answers.
type CommonFields struct {
	Title            *string  `json:"title"`
	CommentsCount    *int64   `json:"comments_count"`
	QuestionID       *int64   `json:"question_id"`
	CreationDate     *int64   `json:"creation_date"`
	DeleteVoteCount  *int64   `json:"delete_vote_count"`
	UpVoteCount      *int64   `json:"up_vote_count"`
	DownVoteCount    *int64   `json:"down_vote_count"`
	FavoriteCount    *int64   `json:"favorite_count"`
	ViewCount        *int64   `json:"view_count"`
	LastActivityDate *int64   `json:"last_activity_date"`
	Link             *string  `json:"link"`
	Score            *int64   `json:"score"`
	Tags             []string `json:"tags"`
}

// Clone returns a deep copy so enriched records never alias raw input.
func (c CommonFields) Clone() CommonFields {
	return CommonFields{
		Title:            clonePtr(c.Title),
		CommentsCount:    clonePtr(c.CommentsCount),
		QuestionID:       clonePtr(c.QuestionID),
		CreationDate:     clonePtr(c.CreationDate),
		DeleteVoteCount:  clonePtr(c.DeleteVoteCount),
		UpVoteCount:      clonePtr(c.UpVoteCount),
		DownVoteCount:    clonePtr(c.DownVoteCount),
		FavoriteCount:    clonePtr(c.FavoriteCount),
		ViewCount:        clonePtr(c.ViewCount),
		LastActivityDate: clonePtr(c.LastActivityDate),
		Link:             clonePtr(c.Link),
		Score:            clonePtr(c.Score),
		Tags:             slices.Clone(c.Tags),
	}
}

// Post is the part of a question or an answer the enricher reads.
type Post struct {
	CommonFields
	Owner *Owner `json:"owner"`

	hasTitle bool
}

// HasTitle reports whether title was sent, even as null.
func (p Post) HasTitle() bool {
	return p.Title != nil || p.hasTitle
}

type RawQuestion struct {
	Post
	Answers []RawAnswer `json:"answers"`
}

func (q *RawQuestion) UnmarshalJSON(data []byte) error {
	type question RawQuestion
	var v question
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*q = RawQuestion(v)
	q.hasTitle = gjson.GetBytes(data, "title").Exists()
	return nil
}

type RawAnswer struct {
	Post
	IsAccepted *bool  `json:"is_accepted"`
	AnswerID   *int64 `json:"answer_id"`
}

func (a *RawAnswer) UnmarshalJSON(data []byte) error {
	type answer RawAnswer
	var v answer
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = RawAnswer(v)
	a.hasTitle = gjson.GetBytes(data, "title").Exists()
	return nil
}

// IdentityCandidate is the input handed to the identity resolver. Email is
// always nil: the platform does not expose it.
type IdentityCandidate struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Name     *string `json:"name"`
}

func ParseRawItem(data []byte) (RawItem, error) {
	var item RawItem
	if err := json.Unmarshal(data, &item); err != nil {
		return RawItem{}, fmt.Errorf("failed to parse raw item: %w", err)
	}
	return item, nil
}

// DecodeRawItems streams items from JSON lines (or any sequence of
// concatenated JSON objects). A decode error ends the sequence.
func DecodeRawItems(r io.Reader) iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		dec := json.NewDecoder(r)
		for {
			var item RawItem
			err := dec.Decode(&item)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(RawItem{}, fmt.Errorf("failed to decode raw item: %w", err))
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Items adapts an in-memory slice to the stream shape the enricher consumes.
func Items(items []RawItem) iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
