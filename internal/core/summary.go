package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Count  int     `json:"count,omitempty"`
}

// TrendPoint is one month of the spending trend.
type TrendPoint struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
}

// Metrics are the headline numbers of the dashboard.
type Metrics struct {
	TotalSpending            float64 `json:"totalSpending"`
	SpendingGrowthPercentage float64 `json:"spendingGrowthPercentage"`
	TotalReceipts            int     `json:"totalReceipts"`
	AverageReceiptAmount     float64 `json:"averageReceiptAmount"`
	PendingReceipts          int     `json:"pendingReceipts"`
}

// Dashboard is the aggregated spending view for a time range.
type Dashboard struct {
	Metrics             Metrics          `json:"metrics"`
	CategoryBreakdown   []CategoryAmount `json:"categoryBreakdown"`
	MonthlyTrend        []TrendPoint     `json:"monthlyTrend"`
	AvailableCategories []string         `json:"availableCategories"`
	RecentReceipts      []Receipt        `json:"recentReceipts"`
}

// TimeRange selects the dashboard window.
type TimeRange string

const (
	Last7Days  TimeRange = "7days"
	Last30Days TimeRange = "30days"
	Last90Days TimeRange = "90days"
	LastYear   TimeRange = "year"
)

func (t TimeRange) IsValid() bool {
	switch t {
	case Last7Days, Last30Days, Last90Days, LastYear:
		return true
	default:
		return false
	}
}

// Share returns each category's percentage of the breakdown total, rounded,
// in the order of the breakdown.
func Share(rows []CategoryAmount) []int {
	var total int64
	for _, r := range rows {
		total += FromFloat(r.Amount).Cents
	}
	out := make([]int, len(rows))
	if total <= 0 {
		return out
	}
	for i, r := range rows {
		c := FromFloat(r.Amount).Cents
		out[i] = int((c*100 + total/2) / total)
	}
	return out
}

// Days is the length of the range; a year counts 365 days.
func (t TimeRange) Days() int {
	switch t {
	case Last7Days:
		return 7
	case Last90Days:
		return 90
	case LastYear:
		return 365
	default:
		return 30
	}
}

func (t TimeRange) Label() string {
	switch t {
	case Last7Days:
		return "Last 7 days"
	case Last90Days:
		return "Last 90 days"
	case LastYear:
		return "This year"
	default:
		return "Last 30 days"
	}
}

// TimeRanges lists the ranges offered by the dashboard filters.
var TimeRanges = []TimeRange{Last7Days, Last30Days, Last90Days, LastYear}

// DailyAverage spreads total over the days of the range.
func DailyAverage(total float64, t TimeRange) Money {
	return FromFloat(total / float64(t.Days()))
}

// TopVendors sums receipt amounts per vendor, largest first, keeping at
// most n rows. Ties keep the vendor seen first.
func TopVendors(receipts []Receipt, n int) []CategoryAmount {
	index := map[string]int{}
	var rows []CategoryAmount
	for _, r := range receipts {
		name := r.Vendor
		if name == "" {
			name = "Unknown"
		}
		i, ok := index[name]
		if !ok {
			i = len(rows)
			index[name] = i
			rows = append(rows, CategoryAmount{Name: name})
		}
		rows[i].Amount = FromFloat(rows[i].Amount + r.Amount).Float()
		rows[i].Count++
	}
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].Amount > rows[b].Amount })
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
