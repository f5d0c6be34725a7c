package assistant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raseed/internal/api"
	"raseed/internal/core"
	"raseed/internal/history"
	"raseed/internal/log"
	"raseed/internal/storage/memory"
)

type fakeSubmitter struct {
	resp api.QueryResponse
	err  error
	got  api.QueryRequest
}

func (f *fakeSubmitter) SubmitQuery(_ context.Context, req api.QueryRequest) (api.QueryResponse, error) {
	f.got = req
	return f.resp, f.err
}

type countingObserver struct {
	asks   int
	failed int
}

func (o *countingObserver) ObserveAsk(_ core.QueryOrigin, err error, _ time.Duration) {
	o.asks++
	if err != nil {
		o.failed++
	}
}

func newAssistant(sub Submitter) (*Assistant, *history.Log, *countingObserver) {
	h := history.New(memory.New())
	obs := &countingObserver{}
	return New(sub, h, obs, log.Discard()), h, obs
}

func TestAsk_Text(t *testing.T) {
	sub := &fakeSubmitter{resp: api.QueryResponse{Summary: "You spent 42.00 on groceries."}}
	a, _, obs := newAssistant(sub)

	ans, err := a.Ask(context.Background(), "dev-1", "ana@example.com", Input{Text: "  groceries this month?  "})
	require.NoError(t, err)
	assert.Equal(t, "You spent 42.00 on groceries.", ans.Summary)
	assert.Equal(t, "groceries this month?", ans.Transcription)
	assert.Equal(t, api.QueryRequest{UserID: "ana@example.com", TextContent: "groceries this month?"}, sub.got)
	assert.Equal(t, 1, obs.asks)

	qs, err := a.History(context.Background(), "dev-1")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "groceries this month?", qs[0].Text)
	assert.Equal(t, core.OriginText, qs[0].Origin)
	assert.Equal(t, 1.0, qs[0].Confidence)
}

func TestAsk_Voice(t *testing.T) {
	sub := &fakeSubmitter{resp: api.QueryResponse{Transcription: " how much on fuel ", Response: "12.00", AudioBase64: "bXAz"}}
	a, _, _ := newAssistant(sub)

	ans, err := a.Ask(context.Background(), "dev-1", "u", Input{AudioBase64: "d2VibQ=="})
	require.NoError(t, err)
	assert.Equal(t, "how much on fuel", ans.Transcription)
	assert.Equal(t, "12.00", ans.Summary)
	assert.Equal(t, "bXAz", ans.AudioBase64)
	assert.Equal(t, "d2VibQ==", sub.got.AudioContent)
	assert.Empty(t, sub.got.TextContent)

	qs, err := a.History(context.Background(), "dev-1")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, VoiceQueryText, qs[0].Text)
	assert.Equal(t, core.OriginVoice, qs[0].Origin)
}

func TestAsk_NoAnswerFallback(t *testing.T) {
	a, _, _ := newAssistant(&fakeSubmitter{})
	ans, err := a.Ask(context.Background(), "dev-1", "u", Input{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, api.NoAnswer, ans.Summary)
}

func TestAsk_FailureIsNotRecorded(t *testing.T) {
	a, _, obs := newAssistant(&fakeSubmitter{err: &api.QueryError{Message: "model unavailable"}})
	_, err := a.Ask(context.Background(), "dev-1", "u", Input{Text: "hi"})

	var qe *api.QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 1, obs.failed)
	qs, err := a.History(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestAsk_EmptyInput(t *testing.T) {
	sub := &fakeSubmitter{}
	a, _, _ := newAssistant(sub)
	_, err := a.Ask(context.Background(), "dev-1", "u", Input{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, sub.got)
}

func TestAsk_HistoryNewestFirst(t *testing.T) {
	a, _, _ := newAssistant(&fakeSubmitter{resp: api.QueryResponse{Summary: "ok"}})
	for _, q := range []string{"first", "second", "third"} {
		_, err := a.Ask(context.Background(), "dev-1", "u", Input{Text: q})
		require.NoError(t, err)
	}
	qs, err := a.History(context.Background(), "dev-1")
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, "third", qs[0].Text)
	assert.Equal(t, "first", qs[2].Text)

	other, err := a.History(context.Background(), "dev-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

// The backend fails once and then answers: one answer, two attempts.
func TestAsk_RetriesOnceAgainstBackend(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":"busy"}`, http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary":"All good"}`))
	}))
	defer srv.Close()

	client := api.New(srv.URL, api.WithRetryDelay(time.Millisecond))
	a, _, _ := newAssistant(client)

	ans, err := a.Ask(context.Background(), "dev-1", "u", Input{Text: "status?"})
	require.NoError(t, err)
	assert.Equal(t, "All good", ans.Summary)
	assert.EqualValues(t, 2, calls.Load())

	qs, err := a.History(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Len(t, qs, 1)
}
