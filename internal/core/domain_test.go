package core

import (
	"testing"
	"time"
)

func TestItemsTotalDefaultsQuantity(t *testing.T) {
	items := []Item{{Name: "a", Price: 10, Quantity: 2}, {Name: "b", Price: 5}}
	if got := ItemsTotal(items).String(); got != "25.00" {
		t.Fatalf("total = %s, want 25.00", got)
	}
	if got := ItemsTotal(items[1:]).String(); got != "5.00" {
		t.Fatalf("total after delete = %s, want 5.00", got)
	}
	if got := ItemsTotal(nil).String(); got != "0.00" {
		t.Fatalf("empty total = %s", got)
	}
}

func TestDraftWithItems(t *testing.T) {
	d := ExtractedReceipt{Vendor: "Shop", Amount: "99.00"}
	d = d.WithItems([]Item{{Name: "x", Price: 1.25, Quantity: 4}})
	if d.Amount != "5.00" {
		t.Fatalf("amount = %s, want 5.00", d.Amount)
	}
	if d.Vendor != "Shop" {
		t.Fatalf("vendor changed: %q", d.Vendor)
	}
}

func TestEmptyDraft(t *testing.T) {
	now := time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC)
	d := EmptyDraft(now)
	if !d.IsEmpty() {
		t.Fatalf("expected empty draft, got %+v", d)
	}
	if d.Date != "2025-03-09" {
		t.Fatalf("date = %q", d.Date)
	}
	if d.Items == nil {
		t.Fatalf("items should be an empty slice, not nil")
	}
}

func TestQueryValidate(t *testing.T) {
	good := Query{Text: "how much on groceries?", Origin: OriginText}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Query{
		{Text: "", Origin: OriginText},
		{Text: "x", Origin: "telepathy"},
	}
	for i, q := range bads {
		if err := q.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestUserProfile(t *testing.T) {
	if err := (UserProfile{}).Validate(); err != ErrEmptyEmail {
		t.Fatalf("expected ErrEmptyEmail, got %v", err)
	}
	if got := (UserProfile{Name: "ada lovelace", Email: "a@b.c"}).Initial(); got != "A" {
		t.Fatalf("initial = %q", got)
	}
	if got := (UserProfile{Email: "a@b.c"}).Initial(); got != "?" {
		t.Fatalf("initial = %q", got)
	}
}

func TestShare(t *testing.T) {
	got := Share([]CategoryAmount{{Name: "a", Amount: 75}, {Name: "b", Amount: 25}})
	if got[0] != 75 || got[1] != 25 {
		t.Fatalf("share = %v", got)
	}
	if got := Share([]CategoryAmount{{Name: "a"}}); got[0] != 0 {
		t.Fatalf("zero total share = %v", got)
	}
}
