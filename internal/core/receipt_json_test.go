package core

import (
	"encoding/json"
	"testing"
)

func TestReceiptUnmarshalNormalizes(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		id     string
		amount float64
		day    int
	}{
		{"string amount", `{"receiptId":"r1","vendor":"Shop","date":"2025-02-03","amount":"12.50"}`, "r1", 12.5, 3},
		{"number amount and id key", `{"id":"r2","amount":7,"date":"2025-02-04T10:00:00Z"}`, "r2", 7, 4},
		{"missing amount", `{"receiptId":"r3","date":""}`, "r3", 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var r Receipt
			if err := json.Unmarshal([]byte(tc.body), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if r.ID != tc.id || r.Amount != tc.amount {
				t.Fatalf("got id=%q amount=%v", r.ID, r.Amount)
			}
			if r.Date.Day() != tc.day {
				t.Fatalf("day = %d, want %d", r.Date.Day(), tc.day)
			}
		})
	}
}

func TestReceiptUnmarshalRejectsGarbageAmount(t *testing.T) {
	var r Receipt
	if err := json.Unmarshal([]byte(`{"amount":"abc"}`), &r); err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
}
