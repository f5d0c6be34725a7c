package http

import (
	"errors"
	"net/http"
	"strings"

	"raseed/internal/api"
	"raseed/internal/core"
	"raseed/internal/fetch"
	"raseed/internal/log"
)

type receiptsData struct {
	Params   ReceiptListParams
	Receipts []core.Receipt
	Error    string
	PrevURL  string
	NextURL  string
}

// handleReceipts renders the receipt list. htmx searches only get the rows
// back; a search overtaken by a newer one answers 204 so nothing is swapped.
func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	params := ParseReceiptListParams(r.URL.Query())
	data := receiptsData{Params: params}

	status := http.StatusOK
	res := s.queries.Search(r.Context(), deviceID(r), params.Filter(user.Email))
	receipts, err := res.Get()
	switch {
	case errors.Is(err, fetch.ErrSuperseded):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Loading receipts failed",
			log.FieldOperation, api.OpListReceipts, log.FieldError, err)
		data.Error = api.Message(err)
		status = http.StatusBadGateway
	default:
		data.Receipts = receipts
	}

	if params.Page > 1 {
		data.PrevURL = "/receipts?" + params.Values(params.Page-1).Encode()
	}
	if len(data.Receipts) == PageSize {
		data.NextURL = "/receipts?" + params.Values(params.Page+1).Encode()
	}

	if isHTMX(r) && r.Header.Get("HX-Target") == "receipt-rows" {
		s.render.fragment(w, r, status, "receipts", "receipt-rows", data)
		return
	}
	s.render.page(w, r, status, "receipts", view{Title: "Receipts", Data: data})
}

type receiptData struct {
	Receipt core.Receipt
	Error   string
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := strings.TrimSpace(r.PathValue("id"))

	receipt, err := s.queries.Receipt(r.Context(), user.Email, id).Get()
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, api.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Loading receipt failed",
				log.FieldReceiptID, id, log.FieldOperation, api.OpGetReceipt, log.FieldError, err)
		}
		s.render.page(w, r, status, "receipt", view{Title: "Receipt", Data: receiptData{Error: api.Message(err)}})
		return
	}
	s.render.page(w, r, http.StatusOK, "receipt", view{Title: receipt.Vendor, Data: receiptData{Receipt: receipt}})
}
