package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"raseed/internal/core"
)

const (
	OpListReceipts = "fetch receipts"
	OpGetReceipt   = "fetch receipt"
	OpSaveReceipt  = "save receipt"
	OpAddManual    = "add receipt"
	OpUpload       = "upload"
)

// ReceiptFilter is the query of GET /api/receipts. Zero fields are omitted.
type ReceiptFilter struct {
	UserID     string
	Category   string
	ReceiptIDs []string
	Search     string
	SortBy     string // date, amount or vendor; date when empty
	SortOrder  string // asc or desc; desc when empty
	StartDate  string
	EndDate    string
	Limit      int
	Offset     int
}

func (f ReceiptFilter) Values() url.Values {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("userId", f.UserID)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	for _, id := range f.ReceiptIDs {
		q.Add("receiptId", id)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	sortBy, sortOrder := f.SortBy, f.SortOrder
	if sortBy == "" {
		sortBy = "date"
	}
	if sortOrder == "" {
		sortOrder = "desc"
	}
	q.Set("sortBy", sortBy)
	q.Set("sortOrder", sortOrder)
	if f.StartDate != "" {
		q.Set("startDate", f.StartDate)
	}
	if f.EndDate != "" {
		q.Set("endDate", f.EndDate)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

// receiptList accepts a bare array or an object wrapping it.
type receiptList []core.Receipt

func (l *receiptList) UnmarshalJSON(data []byte) error {
	var arr []core.Receipt
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var wrapped struct {
		Receipts []core.Receipt `json:"receipts"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Receipts
	return nil
}

func (c *Client) ListReceipts(ctx context.Context, f ReceiptFilter) ([]core.Receipt, error) {
	var out receiptList
	if err := c.getJSON(ctx, OpListReceipts, "/api/receipts", f.Values(), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return []core.Receipt{}, nil
	}
	return out, nil
}

// GetReceipt returns ErrNotFound when the backend has no receipt with id.
func (c *Client) GetReceipt(ctx context.Context, userID, id string) (core.Receipt, error) {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("receiptId", id)
	var out receiptList
	if err := c.getJSON(ctx, OpGetReceipt, "/api/receipts", q, &out); err != nil {
		return core.Receipt{}, err
	}
	if len(out) == 0 {
		return core.Receipt{}, ErrNotFound
	}
	return out[0], nil
}

// flexString decodes a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("total_price: %w", err)
	}
	*s = flexString(core.FromFloat(f).String())
	return nil
}

// Categorization is the backend's reading of a receipt.
type Categorization struct {
	Receipt struct {
		Name       string     `json:"name"`
		TotalPrice flexString `json:"total_price"`
	} `json:"receipt"`
	Items []core.Item `json:"items"`
}

// Extraction is the answer of the upload and manual-entry endpoints.
type Extraction struct {
	Categorization Categorization `json:"categorization"`
	Confidence     *float64       `json:"confidence"`
}

// Draft turns the extraction into an editable receipt dated today. Items
// get quantity one and the default category when the backend left them out;
// a missing confidence counts as 0.9.
func (e Extraction) Draft(now time.Time) core.ExtractedReceipt {
	items := make([]core.Item, 0, len(e.Categorization.Items))
	for _, it := range e.Categorization.Items {
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		if it.CategoryName == "" {
			it.CategoryName = core.DefaultCategory
		}
		items = append(items, it)
	}
	confidence := 0.9
	if e.Confidence != nil {
		confidence = *e.Confidence
	}
	return core.ExtractedReceipt{
		Vendor:     e.Categorization.Receipt.Name,
		Date:       now.Format(core.DateLayout),
		Amount:     string(e.Categorization.Receipt.TotalPrice),
		Items:      items,
		Confidence: confidence,
	}
}

// SaveReceipt stores the reviewed receipt and returns the wallet pass URL,
// which may be empty. It is never retried.
func (c *Client) SaveReceipt(ctx context.Context, userID string, draft core.ExtractedReceipt) (string, error) {
	body := struct {
		UserID               string                `json:"userId"`
		EditedCategorization core.ExtractedReceipt `json:"editedCategorization"`
	}{userID, draft}
	var out struct {
		PassURL string `json:"passUrl"`
	}
	if err := c.postJSON(ctx, OpSaveReceipt, "/api/save-receipt", body, &out); err != nil {
		return "", err
	}
	return out.PassURL, nil
}

type ManualItem struct {
	Name  string `json:"name" validate:"required,max=200"`
	Price string `json:"price" validate:"required,numeric"`
}

// ManualReceipt is a receipt typed in by hand.
type ManualReceipt struct {
	Vendor      string       `json:"vendor" validate:"required,max=200"`
	Date        string       `json:"date" validate:"required,datetime=2006-01-02"`
	ReceiptName string       `json:"receiptName"`
	Items       []ManualItem `json:"items" validate:"min=1,dive"`
	Subtotal    float64      `json:"subtotal"`
	Tax         float64      `json:"tax"`
	Total       float64      `json:"total"`
}

// TaxRate is applied to the subtotal of manual receipts.
const TaxRate = 0.08

// Totals fills Subtotal, Tax and Total from the item prices. Unparseable
// prices count as zero.
func (m *ManualReceipt) Totals() {
	var sub core.Money
	for _, it := range m.Items {
		if cents, err := core.ParseDecimalToCents(it.Price); err == nil {
			sub.Cents += cents
		}
	}
	tax := core.FromFloat(sub.Float() * TaxRate)
	m.Subtotal = sub.Float()
	m.Tax = tax.Float()
	m.Total = core.Money{Cents: sub.Cents + tax.Cents}.Float()
}

func (c *Client) AddManualReceipt(ctx context.Context, userID string, m ManualReceipt) (Extraction, error) {
	body := struct {
		Data   ManualReceipt `json:"data"`
		UserID string        `json:"userId"`
	}{m, userID}
	var out Extraction
	if err := c.postJSON(ctx, OpAddManual, "/api/add_manual_receipt", body, &out); err != nil {
		return Extraction{}, err
	}
	return out, nil
}

// File is a receipt image or PDF to upload.
type File struct {
	Name        string
	ContentType string
	// Size is -1 when unknown.
	Size int64
	Body io.Reader
}

// ProgressFunc receives bytes of the file sent so far and the file size,
// which is -1 when unknown.
type ProgressFunc func(sent, total int64)

// UploadReceipt streams the file to the extraction endpoint. Progress is
// reported as the transport consumes the body. It is never retried.
func (c *Client) UploadReceipt(ctx context.Context, userID string, f File, progress ProgressFunc) (Extraction, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUpload(mw, userID, f, progress))
	}()

	// Closing the read side unblocks the writer if the backend answers
	// before consuming the whole body.
	defer pr.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/upload-extract", nil), pr)
	if err != nil {
		return Extraction{}, fmt.Errorf("%s: build request: %w", OpUpload, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out Extraction
	if err := c.do(OpUpload, req, &out); err != nil {
		return Extraction{}, err
	}
	return out, nil
}

func writeUpload(mw *multipart.Writer, userID string, f File, progress ProgressFunc) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	src := f.Body
	if progress != nil {
		src = &countingReader{r: f.Body, total: f.Size, fn: progress}
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	if err := mw.WriteField("userId", userID); err != nil {
		return err
	}
	return mw.Close()
}

type countingReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.sent += int64(n)
		c.fn(c.sent, c.total)
	}
	return n, err
}

// Message is the text to show the user for err.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, ErrNotFound) {
		return "Receipt not found"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The server took too long to answer"
	}
	return "Network error"
}
