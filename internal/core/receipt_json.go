package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// wireReceipt accepts the shapes the backend has been seen to send: amount as
// a string or a number, id under either key, and dates with or without time.
type wireReceipt struct {
	ReceiptID string          `json:"receiptId"`
	ID        string          `json:"id"`
	Vendor    string          `json:"vendor"`
	Date      string          `json:"date"`
	Amount    json.RawMessage `json:"amount"`
	Category  string          `json:"category"`
	Items     []Item          `json:"items"`
	Notes     string          `json:"notes"`
	PassURL   string          `json:"passUrl"`
	Status    string          `json:"status"`
}

func (r *Receipt) UnmarshalJSON(data []byte) error {
	var w wireReceipt
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	amount, err := parseFlexibleAmount(w.Amount)
	if err != nil {
		return fmt.Errorf("receipt amount: %w", err)
	}
	*r = Receipt{
		ID:       w.ReceiptID,
		Vendor:   w.Vendor,
		Date:     parseFlexibleDate(w.Date),
		Amount:   amount,
		Category: w.Category,
		Items:    w.Items,
		Notes:    w.Notes,
		PassURL:  w.PassURL,
		Status:   w.Status,
	}
	if r.ID == "" {
		r.ID = w.ID
	}
	return nil
}

func parseFlexibleAmount(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return 0, nil
		}
	}
	return strconv.ParseFloat(s, 64)
}

func parseFlexibleDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
