package core

import (
	"errors"
	"strings"
	"time"
)

const (
	OriginVoice QueryOrigin = "voice"
	OriginText  QueryOrigin = "text"
)

type (
	QueryOrigin string

	// UserProfile is the signed-in Google account. Email is the identifier
	// sent to the backend as userId.
	UserProfile struct {
		Name  string `json:"name,omitempty"`
		Email string `json:"email"`
		Image string `json:"image,omitempty"`
	}

	Item struct {
		Name         string  `json:"name" validate:"required,max=200"`
		Price        float64 `json:"price" validate:"gte=0"`
		Quantity     float64 `json:"quantity,omitempty" validate:"gte=0"`
		CategoryName string  `json:"category_name"`
	}

	Receipt struct {
		ID       string    `json:"receiptId"`
		Vendor   string    `json:"vendor"`
		Date     time.Time `json:"date"`
		Amount   float64   `json:"amount"`
		Category string    `json:"category"`
		Items    []Item    `json:"items"`
		Notes    string    `json:"notes,omitempty"`
		PassURL  string    `json:"passUrl,omitempty"`
		// Status is pending, approved or rejected when the backend sends it.
		Status string `json:"status,omitempty"`
	}

	// ExtractedReceipt is the editable draft produced by extraction and
	// reviewed by the user before saving.
	ExtractedReceipt struct {
		Vendor     string  `json:"vendor"`
		Date       string  `json:"date"`
		Amount     string  `json:"amount"`
		Items      []Item  `json:"items"`
		Notes      string  `json:"notes"`
		Confidence float64 `json:"confidence"`
	}

	// Query is one entry of the assistant interaction log.
	Query struct {
		ID         string      `json:"id"`
		Text       string      `json:"text"`
		Timestamp  time.Time   `json:"timestamp"`
		Confidence float64     `json:"confidence,omitempty"`
		Origin     QueryOrigin `json:"origin"`
	}
)

var (
	ErrNoItems        = errors.New("no items to save")
	ErrInvalidIndex   = errors.New("item index out of range")
	ErrEmptyEmail     = errors.New("empty email")
	ErrInvalidOrigin  = errors.New("invalid query origin")
	ErrEmptyQueryText = errors.New("empty query text")
)

// DefaultCategory is assigned to items the backend could not categorize.
const DefaultCategory = "miscellaneous"

// ItemCategories lists the categories offered when editing an item.
var ItemCategories = []string{
	"Groceries & Pantry",
	"Beverages",
	"Personal Care & Beauty",
	"Health & Wellness",
	"Home & Cleaning Supplies",
	"Baby Kids & Maternity",
	"Fashion & Accessories",
	"Electronics & Gadgets",
	"Home & Kitchen Appliances",
	"Pets Garden & Auto",
	"Miscellaneous & Extras",
}

// Qty returns the quantity used in arithmetic; an unset quantity counts as one.
func (i Item) Qty() float64 {
	if i.Quantity <= 0 {
		return 1
	}
	return i.Quantity
}

// Total is price times quantity.
func (i Item) Total() Money {
	return FromFloat(i.Price * i.Qty())
}

func (p UserProfile) Validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return ErrEmptyEmail
	}
	return nil
}

// Initial returns the first letter of the name, for avatar fallbacks.
func (p UserProfile) Initial() string {
	for _, r := range strings.TrimSpace(p.Name) {
		return strings.ToUpper(string(r))
	}
	return "?"
}

func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyQueryText
	}
	switch q.Origin {
	case OriginVoice, OriginText:
		return nil
	default:
		return ErrInvalidOrigin
	}
}

// ItemsTotal sums price*quantity over items.
func ItemsTotal(items []Item) Money {
	var total Money
	for _, it := range items {
		total.Cents += it.Total().Cents
	}
	return total
}

// EmptyDraft is the placeholder shown when nothing could be extracted.
func EmptyDraft(now time.Time) ExtractedReceipt {
	return ExtractedReceipt{
		Date:  now.Format(DateLayout),
		Items: []Item{},
	}
}

// WithItems returns a copy of the draft holding items and the recomputed amount.
func (d ExtractedReceipt) WithItems(items []Item) ExtractedReceipt {
	d.Items = items
	d.Amount = ItemsTotal(items).String()
	return d
}

// IsEmpty reports whether extraction produced nothing usable.
func (d ExtractedReceipt) IsEmpty() bool {
	return d.Vendor == "" && d.Amount == "" && len(d.Items) == 0
}

// DateLayout is the wire format of receipt dates.
const DateLayout = "2006-01-02"
