// Package assistant answers spoken or typed questions about the user's
// spending and keeps the per-device query history.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"raseed/internal/api"
	"raseed/internal/core"
	"raseed/internal/log"
)

// VoiceQueryText is recorded in the history for spoken questions.
const VoiceQueryText = "Voice query"

var ErrEmptyInput = errors.New("ask something first")

// Submitter sends the question to the backend. Retrying is its concern.
type Submitter interface {
	SubmitQuery(ctx context.Context, req api.QueryRequest) (api.QueryResponse, error)
}

// History is where answered questions are recorded.
type History interface {
	Add(ctx context.Context, deviceID, text string, origin core.QueryOrigin, confidence float64) (core.Query, error)
	List(ctx context.Context, deviceID string) ([]core.Query, error)
}

// Observer is told about every ask.
type Observer interface {
	ObserveAsk(origin core.QueryOrigin, err error, elapsed time.Duration)
}

// Input is one question. AudioBase64 wins when both are set.
type Input struct {
	Text        string
	AudioBase64 string
}

func (in Input) origin() core.QueryOrigin {
	if in.AudioBase64 != "" {
		return core.OriginVoice
	}
	return core.OriginText
}

type Answer struct {
	// Transcription is what the backend heard, or the typed text.
	Transcription string
	Summary       string
	AudioBase64   string
	Query         core.Query
}

type Assistant struct {
	submitter Submitter
	history   History
	observer  Observer
	logger    *log.Logger
}

func New(submitter Submitter, history History, observer Observer, logger *log.Logger) *Assistant {
	return &Assistant{
		submitter: submitter,
		history:   history,
		observer:  observer,
		logger:    logger.WithComponent(log.ComponentAssistant),
	}
}

// Ask submits the question and records it in the device history once an
// answer arrived. A history write failure is logged; the answer is still
// returned.
func (a *Assistant) Ask(ctx context.Context, deviceID, userID string, in Input) (Answer, error) {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" && in.AudioBase64 == "" {
		return Answer{}, ErrEmptyInput
	}
	origin := in.origin()

	req := api.QueryRequest{UserID: userID}
	if origin == core.OriginVoice {
		req.AudioContent = in.AudioBase64
	} else {
		req.TextContent = in.Text
	}

	start := time.Now()
	resp, err := a.submitter.SubmitQuery(ctx, req)
	if a.observer != nil {
		a.observer.ObserveAsk(origin, err, time.Since(start))
	}
	if err != nil {
		a.logger.WarnContext(ctx, "Assistant query failed",
			log.FieldDeviceID, deviceID, "origin", origin, log.FieldError, err)
		return Answer{}, err
	}

	ans := Answer{
		Transcription: strings.TrimSpace(resp.Transcription),
		Summary:       resp.Answer(),
		AudioBase64:   resp.AudioBase64,
	}
	if ans.Transcription == "" {
		ans.Transcription = in.Text
	}

	text := in.Text
	if origin == core.OriginVoice {
		text = VoiceQueryText
	}
	q, err := a.history.Add(ctx, deviceID, text, origin, 1)
	if err != nil {
		a.logger.ErrorContext(ctx, "Recording query failed",
			log.FieldDeviceID, deviceID, log.FieldError, err)
	}
	ans.Query = q
	return ans, nil
}

// History lists the device's questions, newest first.
func (a *Assistant) History(ctx context.Context, deviceID string) ([]core.Query, error) {
	return a.history.List(ctx, deviceID)
}
