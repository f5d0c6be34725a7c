package http

import (
	"errors"
	"net/http"

	"raseed/internal/api"
	"raseed/internal/assistant"
	"raseed/internal/core"
	"raseed/internal/log"
)

// maxAskBytes bounds a question body; recorded audio arrives base64 encoded.
const maxAskBytes = 10 << 20

type assistantData struct {
	History []core.Query
	Error   string
}

func (s *Server) loadHistory(r *http.Request) assistantData {
	queries, err := s.deps.Assistant.History(r.Context(), deviceID(r))
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Loading query history failed",
			log.FieldOperation, log.OpList, log.FieldError, err)
		return assistantData{Error: "History is unavailable right now."}
	}
	return assistantData{History: queries}
}

func (s *Server) handleAssistantPage(w http.ResponseWriter, r *http.Request) {
	s.render.page(w, r, http.StatusOK, "assistant", view{Title: "Assistant", Data: s.loadHistory(r)})
}

func (s *Server) handleAssistantHistory(w http.ResponseWriter, r *http.Request) {
	s.render.fragment(w, r, http.StatusOK, "assistant", "assistant-history", s.loadHistory(r))
}

// handleAssistantAsk takes a typed question from the form or a recording
// posted as JSON by the page script.
func (s *Server) handleAssistantAsk(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r, maxAskBytes)
	if err := p.Parse(); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			ErrorResponse(http.StatusRequestEntityTooLarge, "The recording is too long.").Write(w)
			return
		}
		BadRequestError("Invalid request.").Write(w)
		return
	}

	in := assistant.Input{Text: p.Get("text"), AudioBase64: p.Get("audio")}
	ans, err := s.deps.Assistant.Ask(r.Context(), deviceID(r), currentUser(r).Email, in)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyInput) {
			UnprocessableEntityError("Type or record a question first.").Write(w)
			return
		}
		BadGatewayError(api.Message(err)).Write(w)
		return
	}

	body, err := s.render.html("assistant", "assistant-answer", ans)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Rendering answer failed",
			log.FieldOperation, log.OpRender, log.FieldError, err)
		InternalServerError("Something went wrong.").Write(w)
		return
	}
	NewHTMXResponse().
		TriggerHistoryRefresh().
		Header("Content-Type", "text/html; charset=utf-8").
		Body(body).
		Write(w)
}
