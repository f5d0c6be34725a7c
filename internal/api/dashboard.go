package api

import (
	"context"
	"encoding/json"
	"net/url"

	"raseed/internal/core"
)

const OpDashboard = "load dashboard"

// Dashboard loads the spending overview. category "all" or "" means every
// category.
func (c *Client) Dashboard(ctx context.Context, userID string, timeRange core.TimeRange, category string) (core.Dashboard, error) {
	if category == "all" {
		category = ""
	}
	q := url.Values{}
	q.Set("timeRange", string(timeRange))
	q.Set("category", category)
	q.Set("userId", userID)

	var raw wireDashboard
	if err := c.getJSON(ctx, OpDashboard, "/api/dashboard", q, &raw); err != nil {
		return core.Dashboard{}, err
	}
	return raw.dashboard(), nil
}

// wireDashboard accepts the camelCase and snake_case spellings the backend
// has used over time.
type wireDashboard struct {
	Metrics *wireMetrics `json:"metrics"`
	wireMetrics

	CategoryBreakdown        []wireAmount    `json:"categoryBreakdown"`
	CategoryBreakdownSnake   []wireAmount    `json:"category_breakdown"`
	MonthlyTrend             []wireAmount    `json:"monthlyTrend"`
	MonthlyTrendSnake        []wireAmount    `json:"monthly_trend"`
	Trends                   []wireAmount    `json:"trends"`
	AvailableCategories      []string        `json:"availableCategories"`
	AvailableCategoriesSnake []string        `json:"available_categories"`
	Categories               json.RawMessage `json:"categories"`
	RecentReceipts           []core.Receipt  `json:"recentReceipts"`
	RecentReceiptsSnake      []core.Receipt  `json:"recent_receipts"`
	Receipts                 []core.Receipt  `json:"receipts"`
}

type wireMetrics struct {
	TotalSpending            *float64 `json:"totalSpending"`
	TotalSpendingSnake       *float64 `json:"total_spending"`
	SpendingGrowthPercentage *float64 `json:"spendingGrowthPercentage"`
	SpendingGrowthSnake      *float64 `json:"spending_growth_percentage"`
	TotalReceipts            int      `json:"totalReceipts"`
	AverageReceiptAmount     float64  `json:"averageReceiptAmount"`
	PendingReceipts          int      `json:"pendingReceipts"`
}

type wireAmount struct {
	CategoryName string   `json:"category_name"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Month        string   `json:"month"`
	Period       string   `json:"period"`
	Date         string   `json:"date"`
	TotalAmount  *float64 `json:"totalAmount"`
	Amount       *float64 `json:"amount"`
	Total        *float64 `json:"total"`
	Count        int      `json:"count"`
}

func (a wireAmount) amount() float64 {
	for _, v := range []*float64{a.TotalAmount, a.Amount, a.Total} {
		if v != nil && *v != 0 {
			return *v
		}
	}
	return 0
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstFloat(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstNonEmpty[T any](lists ...[]T) []T {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return []T{}
}

func (w wireDashboard) dashboard() core.Dashboard {
	m := w.wireMetrics
	if w.Metrics != nil {
		m = *w.Metrics
	}

	// "categories" is either the breakdown or the list of names.
	var catRows []wireAmount
	var catNames []string
	if len(w.Categories) > 0 {
		if json.Unmarshal(w.Categories, &catNames) != nil {
			catNames = nil
			_ = json.Unmarshal(w.Categories, &catRows)
		}
	}

	d := core.Dashboard{
		Metrics: core.Metrics{
			TotalSpending:            firstFloat(m.TotalSpending, m.TotalSpendingSnake),
			SpendingGrowthPercentage: firstFloat(m.SpendingGrowthPercentage, m.SpendingGrowthSnake),
			TotalReceipts:            m.TotalReceipts,
			AverageReceiptAmount:     m.AverageReceiptAmount,
			PendingReceipts:          m.PendingReceipts,
		},
		AvailableCategories: firstNonEmpty(w.AvailableCategories, w.AvailableCategoriesSnake, catNames),
		RecentReceipts:      firstNonEmpty(w.RecentReceipts, w.RecentReceiptsSnake, w.Receipts),
	}

	for _, row := range firstNonEmpty(w.CategoryBreakdown, w.CategoryBreakdownSnake, catRows) {
		d.CategoryBreakdown = append(d.CategoryBreakdown, core.CategoryAmount{
			Name:   firstString(row.CategoryName, row.Name, row.Category, "Unknown"),
			Amount: row.amount(),
			Count:  row.Count,
		})
	}
	for _, row := range firstNonEmpty(w.MonthlyTrend, w.MonthlyTrendSnake, w.Trends) {
		d.MonthlyTrend = append(d.MonthlyTrend, core.TrendPoint{
			Month:  firstString(row.Month, row.Period, row.Date, "Unknown"),
			Amount: row.amount(),
		})
	}
	return d
}
