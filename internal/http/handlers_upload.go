package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"raseed/internal/api"
	"raseed/internal/core"
	"raseed/internal/fetch"
	"raseed/internal/guard"
	"raseed/internal/log"
	"raseed/internal/upload"
)

type uploadData struct {
	Snapshot upload.Snapshot
	// Percent is the upload progress, -1 while unknown.
	Percent int
}

func (s *Server) flow(r *http.Request) *upload.Flow {
	return s.deps.Uploads.For(deviceID(r))
}

func (s *Server) uploadData(r *http.Request) uploadData {
	snap := s.flow(r).Snapshot()
	return uploadData{Snapshot: snap, Percent: snap.Progress.Percent()}
}

func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	s.render.page(w, r, http.StatusOK, "upload", view{Title: "Upload receipt", Data: s.uploadData(r)})
}

// handleUploadStatus is polled while the extraction runs.
func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	s.writePanel(w, r, NewHTMXResponse())
}

// writePanel answers with the upload panel as it stands now.
func (s *Server) writePanel(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder) {
	body, err := s.render.html("upload", "upload-panel", s.uploadData(r))
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Rendering upload panel failed",
			log.FieldOperation, log.OpRender, log.FieldError, err)
		InternalServerError("Something went wrong. Please reload the page.").Write(w)
		return
	}
	b.Header("Content-Type", "text/html; charset=utf-8").Body(body).Write(w)
}

// handleUploadSelect reads the chosen file into memory and starts the
// extraction. The browser then polls the panel until review.
func (s *Server) handleUploadSelect(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentUpload)
	user := currentUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			ErrorResponse(http.StatusRequestEntityTooLarge, "This file is too large.").Write(w)
			return
		}
		BadRequestError("Choose a receipt image or PDF to upload.").Write(w)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		logger.WarnContext(r.Context(), "Reading upload failed", log.FieldError, err)
		BadRequestError("The file could not be read.").Write(w)
		return
	}
	if int64(len(data)) > s.maxBytes {
		ErrorResponse(http.StatusRequestEntityTooLarge, "This file is too large.").Write(w)
		return
	}
	if len(data) == 0 {
		BadRequestError("The file is empty.").Write(w)
		return
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/pdf" {
		UnprocessableEntityError("Only images and PDF files can be read.").Write(w)
		return
	}

	f := api.File{
		Name:        filepath.Base(sanitizeInput(header.Filename)),
		ContentType: contentType,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}
	if err := s.flow(r).Select(r.Context(), user.Email, f); err != nil {
		if errors.Is(err, upload.ErrBusy) {
			ConflictError("A receipt is already being processed.").Write(w)
			return
		}
		logger.ErrorContext(r.Context(), "Starting extraction failed", log.FieldError, err)
		InternalServerError("The upload could not be started.").Write(w)
		return
	}
	s.writePanel(w, r, NewHTMXResponse())
}

func (s *Server) handleItemEdit(w http.ResponseWriter, r *http.Request) {
	i, err := parseIndex(r)
	if err != nil {
		NotFoundError("This item no longer exists.").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid form.").Write(w)
		return
	}
	item, err := ParseItemForm(r.PostForm)
	if err != nil {
		UnprocessableEntityError(validationMessage(err)).Write(w)
		return
	}
	if err := s.flow(r).EditItem(i, item); err != nil {
		s.writeFlowError(w, err)
		return
	}
	s.writePanel(w, r, NewHTMXResponse().TriggerDraftChanged(s.flow(r).Snapshot().Draft.Amount))
}

func (s *Server) handleItemDelete(w http.ResponseWriter, r *http.Request) {
	i, err := parseIndex(r)
	if err != nil {
		NotFoundError("This item no longer exists.").Write(w)
		return
	}
	if err := s.flow(r).DeleteItem(i); err != nil {
		s.writeFlowError(w, err)
		return
	}
	s.writePanel(w, r, NewHTMXResponse().TriggerDraftChanged(s.flow(r).Snapshot().Draft.Amount))
}

func (s *Server) handleUploadDetails(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid form.").Write(w)
		return
	}
	date := strings.TrimSpace(r.PostForm.Get("date"))
	if date != "" && !validDate(date) {
		UnprocessableEntityError("date must be a date (YYYY-MM-DD)").Write(w)
		return
	}
	err := s.flow(r).SetDetails(sanitizeInput(r.PostForm.Get("vendor")), date, sanitizeInput(r.PostForm.Get("notes")))
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	s.writePanel(w, r, NewHTMXResponse())
}

// handleUploadSave stores the reviewed receipt once. On failure the draft
// stays under review so the user can try again.
func (s *Server) handleUploadSave(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	passURL, err := s.flow(r).Save(r.Context(), user.Email)
	if err != nil {
		if errors.Is(err, core.ErrNoItems) || errors.Is(err, upload.ErrNotInReview) || errors.Is(err, upload.ErrSaveInProgress) {
			s.writeFlowError(w, err)
			return
		}
		BadGatewayError("Failed to save receipt. Please try again.").Write(w)
		return
	}
	s.queries.Invalidate(user.Email)
	s.writePanel(w, r, NewHTMXResponse().
		TriggerReceiptSaved(passURL).
		TriggerSuccessNotification("Receipt saved"))
}

func (s *Server) handleUploadCancel(w http.ResponseWriter, r *http.Request) {
	s.flow(r).Cancel()
	s.writePanel(w, r, NewHTMXResponse())
}

func (s *Server) writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidIndex):
		NotFoundError("This item no longer exists.").Write(w)
	case errors.Is(err, core.ErrNoItems):
		UnprocessableEntityError("Add at least one item before saving.").Write(w)
	case errors.Is(err, upload.ErrSaveInProgress):
		ConflictError("The receipt is already being saved.").Write(w)
	case errors.Is(err, upload.ErrNotInReview):
		ConflictError("There is no receipt to review. Upload one first.").Write(w)
	default:
		InternalServerError("Something went wrong.").Write(w)
	}
}

type addReceiptData struct {
	Form  api.ManualReceipt
	Rows  []api.ManualItem
	Error string
}

func (s *Server) renderAddReceipt(w http.ResponseWriter, r *http.Request, status int, m api.ManualReceipt, msg string) {
	rows := m.Items
	for len(rows) < 3 {
		rows = append(rows, api.ManualItem{})
	}
	s.render.page(w, r, status, "add_receipt", view{
		Title: "Add receipt",
		Data:  addReceiptData{Form: m, Rows: rows, Error: msg},
	})
}

func (s *Server) handleAddReceiptPage(w http.ResponseWriter, r *http.Request) {
	s.renderAddReceipt(w, r, http.StatusOK, api.ManualReceipt{Date: s.now().Format(core.DateLayout)}, "")
}

// handleAddReceipt sends a hand-typed receipt for categorization and puts
// the answer under review on the upload page.
func (s *Server) handleAddReceipt(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderAddReceipt(w, r, http.StatusBadRequest, api.ManualReceipt{}, "Invalid form.")
		return
	}
	m, err := ParseManualReceipt(r.PostForm)
	if err != nil {
		s.renderAddReceipt(w, r, http.StatusUnprocessableEntity, m, validationMessage(err))
		return
	}

	user := currentUser(r)
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentUpload)
	res := s.queries.AddManual(r.Context(), user.Email, m, fetch.Callbacks[api.Extraction]{
		OnSuccess: func(ext api.Extraction) {
			draft := ext.Draft(s.now())
			if draft.Vendor == "" {
				draft.Vendor = m.Vendor
			}
			draft.Date = m.Date
			if draft.Amount == "" {
				draft.Amount = core.FromFloat(m.Total).String()
			}
			s.flow(r).Adopt(draft)
			s.queries.Invalidate(user.Email)
		},
		OnError: func(err error) {
			logger.ErrorContext(r.Context(), "Adding manual receipt failed",
				log.FieldOperation, api.OpAddManual, log.FieldError, err)
		},
	})
	if !res.IsOK() {
		s.renderAddReceipt(w, r, http.StatusBadGateway, m, "Failed to save receipt. Please try again.")
		return
	}
	guard.SeeOther(w, r, "/upload")
}
