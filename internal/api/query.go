package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"raseed/internal/log"
)

const OpQuery = "query"

// QueryRequest is a spoken or typed question. Exactly one of the two
// contents is expected.
type QueryRequest struct {
	UserID       string `json:"userId,omitempty"`
	TextContent  string `json:"textContent,omitempty"`
	AudioContent string `json:"audioContent,omitempty"`
}

type QueryResponse struct {
	Transcription string `json:"transcription"`
	Summary       string `json:"summary"`
	Response      string `json:"response"`
	AudioBase64   string `json:"audioBase64"`
	Error         string `json:"error"`
}

// NoAnswer is shown when the backend answered with neither summary nor
// response.
const NoAnswer = "Sorry, I didn't get that."

// Answer picks the text to show: summary, then response, then NoAnswer.
func (r QueryResponse) Answer() string {
	if s := strings.TrimSpace(r.Summary); s != "" {
		return r.Summary
	}
	if s := strings.TrimSpace(r.Response); s != "" {
		return r.Response
	}
	return NoAnswer
}

// QueryError is a well-formed backend answer whose error field is set.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string { return e.Message }

// SubmitQuery posts the question, retrying exactly once when the call
// fails. An answer carrying an error field is not retried.
func (c *Client) SubmitQuery(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	attempt := 0
	op := func() (QueryResponse, error) {
		attempt++
		var out QueryResponse
		if err := c.postJSON(ctx, OpQuery, "/api/user-queries", req, &out); err != nil {
			if ctx.Err() != nil {
				return QueryResponse{}, backoff.Permanent(err)
			}
			return QueryResponse{}, err
		}
		if out.Error != "" {
			return QueryResponse{}, backoff.Permanent(&QueryError{Message: out.Error})
		}
		return out, nil
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retry)),
		backoff.WithMaxTries(2),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.WarnContext(ctx, "Query failed, retrying once",
				log.FieldAttempt, attempt, log.FieldError, err, "retry_in", next)
		}),
	)
	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			return QueryResponse{}, qe
		}
		return QueryResponse{}, err
	}
	return res, nil
}
