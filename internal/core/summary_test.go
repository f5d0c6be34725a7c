package core

import "testing"

func TestTimeRange(t *testing.T) {
	tests := []struct {
		r     TimeRange
		valid bool
		days  int
	}{
		{Last7Days, true, 7},
		{Last30Days, true, 30},
		{Last90Days, true, 90},
		{LastYear, true, 365},
		{"decade", false, 30},
	}
	for _, tt := range tests {
		if tt.r.IsValid() != tt.valid {
			t.Errorf("%q IsValid() = %v", tt.r, !tt.valid)
		}
		if tt.r.Days() != tt.days {
			t.Errorf("%q Days() = %d, want %d", tt.r, tt.r.Days(), tt.days)
		}
	}
	if got := DailyAverage(70, Last7Days).String(); got != "10.00" {
		t.Errorf("DailyAverage = %s", got)
	}
}

func TestTopVendors(t *testing.T) {
	receipts := []Receipt{
		{Vendor: "Market", Amount: 10.10},
		{Vendor: "Cafe", Amount: 4.50},
		{Vendor: "Market", Amount: 20.20},
		{Vendor: "", Amount: 1},
		{Vendor: "Cafe", Amount: 4.50},
	}
	got := TopVendors(receipts, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "Market" || got[0].Amount != 30.30 || got[0].Count != 2 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Name != "Cafe" || got[1].Amount != 9 {
		t.Errorf("second = %+v", got[1])
	}
	if all := TopVendors(receipts, 0); len(all) != 3 || all[2].Name != "Unknown" {
		t.Errorf("all = %+v", all)
	}
}
