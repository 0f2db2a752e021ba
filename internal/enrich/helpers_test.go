package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spacesedan/stackenrich/internal/models"
)

func ptr[T any](v T) *T { return &v }

type putCall struct {
	url  string
	body string
}

type fakeTransport struct {
	mu       sync.Mutex
	indexURL string
	max      int
	calls    []putCall
	failOn   int // 1-based call number that fails, 0 never
}

func (f *fakeTransport) IndexURL() string  { return f.indexURL }
func (f *fakeTransport) MaxItemsBulk() int { return f.max }

func (f *fakeTransport) Put(_ context.Context, url string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, putCall{url: url, body: string(body)})
	if f.failOn == len(f.calls) {
		return errors.New("connection reset by peer")
	}
	return nil
}

type resolveCall struct {
	candidate  models.IdentityCandidate
	observedAt time.Time
}

type fakeResolver struct {
	calls  []resolveCall
	fields map[string]any
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, candidate models.IdentityCandidate, observedAt time.Time) (map[string]any, error) {
	f.calls = append(f.calls, resolveCall{candidate: candidate, observedAt: observedAt})
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]any, len(f.fields)+1)
	for k, v := range f.fields {
		out[k] = v
	}
	out["author_user_name"] = *candidate.Username
	return out, nil
}

func owner(name string) *models.Owner {
	return &models.Owner{
		DisplayName: ptr(name),
		Link:        ptr("https://stackoverflow.com/users/" + name),
		Reputation:  ptr(int64(len(name) * 100)),
	}
}

func answer(questionID, answerID int64, ownerName string) models.RawAnswer {
	return models.RawAnswer{
		Post: models.Post{
			CommonFields: models.CommonFields{
				Title:            ptr("How do I close a channel?"),
				QuestionID:       ptr(questionID),
				CreationDate:     ptr(int64(1464615209)),
				LastActivityDate: ptr(int64(1464615300)),
				Score:            ptr(int64(3)),
			},
			Owner: owner(ownerName),
		},
		IsAccepted: ptr(answerID%2 == 1),
		AnswerID:   ptr(answerID),
	}
}

func rawItem(questionID int64, answers ...models.RawAnswer) models.RawItem {
	return models.RawItem{
		UpdatedOn: ptr("2016-05-30T13:33:29+00:00"),
		Timestamp: ptr("2016-06-01T10:00:00+00:00"),
		UniqueID:  ptr(fmt.Sprintf("ocean-%d", questionID)),
		Origin:    ptr("https://stackoverflow.com/questions/tagged/go"),
		Data: &models.RawQuestion{
			Post: models.Post{
				CommonFields: models.CommonFields{
					Title:            ptr("How do I close a channel?"),
					CommentsCount:    ptr(int64(2)),
					QuestionID:       ptr(questionID),
					CreationDate:     ptr(int64(1464600000)),
					UpVoteCount:      ptr(int64(5)),
					ViewCount:        ptr(int64(250)),
					LastActivityDate: ptr(int64(0)),
					Link:             ptr("https://stackoverflow.com/q/1"),
					Score:            ptr(int64(5)),
					Tags:             []string{"go", "channels"},
				},
				Owner: owner("gopher"),
			},
			Answers: answers,
		},
	}
}
