// This file implements utilities for parsing and validating request data:
// page filters, review edits, the manual receipt form and the assistant
// question body.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"raseed/internal/api"
	"raseed/internal/core"
)

// PageSize is the number of receipts per list page.
const PageSize = 20

var validate = validator.New(validator.WithRequiredStructEnabled())

var errInvalidIndex = errors.New("invalid item index")

// DashboardParams are the dashboard and analytics filters.
type DashboardParams struct {
	TimeRange core.TimeRange
	// Category is empty for all categories.
	Category string
}

// ParseDashboardParams reads timeRange and category, defaulting to the last
// 30 days and all categories.
func ParseDashboardParams(query url.Values, def core.TimeRange) DashboardParams {
	p := DashboardParams{TimeRange: def}
	if tr := core.TimeRange(strings.TrimSpace(query.Get("timeRange"))); tr.IsValid() {
		p.TimeRange = tr
	}
	if c := sanitizeInput(query.Get("category")); c != "" && !strings.EqualFold(c, "all") {
		p.Category = c
	}
	return p
}

// ReceiptListParams is the receipts page state as read from the URL.
type ReceiptListParams struct {
	Search    string
	Category  string
	SortBy    string
	SortOrder string
	StartDate string
	EndDate   string
	Page      int
}

// ParseReceiptListParams reads the list filters. Unknown sort fields fall
// back to date, unknown orders to desc, bad dates are dropped.
func ParseReceiptListParams(query url.Values) ReceiptListParams {
	p := ReceiptListParams{
		Search:    sanitizeInput(query.Get("search")),
		SortBy:    "date",
		SortOrder: "desc",
		Page:      1,
	}
	if c := sanitizeInput(query.Get("category")); c != "" && !strings.EqualFold(c, "all") {
		p.Category = c
	}
	switch s := query.Get("sortBy"); s {
	case "date", "amount", "vendor":
		p.SortBy = s
	}
	switch o := query.Get("sortOrder"); o {
	case "asc", "desc":
		p.SortOrder = o
	}
	if d := strings.TrimSpace(query.Get("startDate")); validDate(d) {
		p.StartDate = d
	}
	if d := strings.TrimSpace(query.Get("endDate")); validDate(d) {
		p.EndDate = d
	}
	if v, err := strconv.Atoi(query.Get("page")); err == nil && v > 1 {
		p.Page = v
	}
	return p
}

// Filter is the backend query for the user's page of receipts.
func (p ReceiptListParams) Filter(userID string) api.ReceiptFilter {
	return api.ReceiptFilter{
		UserID:    userID,
		Category:  p.Category,
		Search:    p.Search,
		SortBy:    p.SortBy,
		SortOrder: p.SortOrder,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Limit:     PageSize,
		Offset:    (p.Page - 1) * PageSize,
	}
}

// Values encodes the params back into a query string, with page overridden.
func (p ReceiptListParams) Values(page int) url.Values {
	q := url.Values{}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	q.Set("sortBy", p.SortBy)
	q.Set("sortOrder", p.SortOrder)
	if p.StartDate != "" {
		q.Set("startDate", p.StartDate)
	}
	if p.EndDate != "" {
		q.Set("endDate", p.EndDate)
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return q
}

func validDate(s string) bool {
	if s == "" {
		return false
	}
	_, err := time.Parse(core.DateLayout, s)
	return err == nil
}

// ParseItemForm reads one edited line item. Quantity defaults to one.
func ParseItemForm(form url.Values) (core.Item, error) {
	item := core.Item{
		Name:         sanitizeInput(form.Get("name")),
		CategoryName: sanitizeInput(form.Get("category_name")),
		Quantity:     1,
	}
	cents, err := core.ParseDecimalToCents(form.Get("price"))
	if err != nil {
		return core.Item{}, fmt.Errorf("price: %w", err)
	}
	item.Price = core.Money{Cents: cents}.Float()

	if q := strings.TrimSpace(form.Get("quantity")); q != "" {
		v, err := strconv.ParseFloat(strings.ReplaceAll(q, ",", "."), 64)
		if err != nil || v <= 0 {
			return core.Item{}, errors.New("quantity must be a positive number")
		}
		item.Quantity = v
	}
	if item.CategoryName == "" {
		item.CategoryName = core.DefaultCategory
	}
	if err := validate.Struct(item); err != nil {
		return core.Item{}, err
	}
	return item, nil
}

// ParseManualReceipt reads the add-receipt form. Item rows come as
// parallel item_name / item_price lists; rows left blank are skipped.
func ParseManualReceipt(form url.Values) (api.ManualReceipt, error) {
	m := api.ManualReceipt{
		Vendor:      sanitizeInput(form.Get("vendor")),
		Date:        strings.TrimSpace(form.Get("date")),
		ReceiptName: sanitizeInput(form.Get("receiptName")),
	}
	names, prices := form["item_name"], form["item_price"]
	for i := range max(len(names), len(prices)) {
		var name, price string
		if i < len(names) {
			name = sanitizeInput(names[i])
		}
		if i < len(prices) {
			price = strings.ReplaceAll(strings.TrimSpace(prices[i]), ",", ".")
		}
		if name == "" && price == "" {
			continue
		}
		m.Items = append(m.Items, api.ManualItem{Name: name, Price: price})
	}
	m.Totals()
	if err := validate.Struct(m); err != nil {
		return m, err
	}
	return m, nil
}

// validationMessage turns validator errors into a sentence for the form.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if errors.Is(err, core.ErrInvalidAmount) {
			return "Enter a valid amount"
		}
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, "add at least one "+strings.TrimSuffix(field, "s"))
		case "numeric", "gte":
			msgs = append(msgs, field+" must be a valid amount")
		case "datetime":
			msgs = append(msgs, field+" must be a date (YYYY-MM-DD)")
		case "max":
			msgs = append(msgs, field+" is too long")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// parseIndex reads the {i} path segment of item routes.
func parseIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(r.PathValue("i"))
	if err != nil || i < 0 {
		return 0, errInvalidIndex
	}
	return i, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// RequestBodyParser reads a body that is either JSON (sent by scripts) or
// form-encoded (sent by htmx forms).
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most limit bytes of the body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request, limit int64) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a trimmed string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
