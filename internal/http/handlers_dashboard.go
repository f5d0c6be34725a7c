package http

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"raseed/internal/api"
	"raseed/internal/core"
	"raseed/internal/log"
)

type dashboardData struct {
	Params    DashboardParams
	Dashboard core.Dashboard
	Shares    []int
	Recent    []core.Receipt
	// RecentError is set when only the recent receipts failed to load.
	RecentError string
	Error       string
}

// handleDashboard loads the dashboard figures and the latest receipts in
// parallel. The figures failing fails the page; the list failing only
// blanks its card.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	params := ParseDashboardParams(r.URL.Query(), core.Last30Days)
	data := dashboardData{Params: params}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		d, err := s.queries.Dashboard(ctx, user.Email, params).Get()
		if err != nil {
			return err
		}
		data.Dashboard = d
		return nil
	})
	g.Go(func() error {
		recent, err := s.queries.Receipts(r.Context(), api.ReceiptFilter{
			UserID: user.Email, Category: params.Category, SortBy: "date", SortOrder: "desc", Limit: 5,
		}).Get()
		if err != nil {
			data.RecentError = api.Message(err)
			return nil
		}
		data.Recent = recent
		return nil
	})

	status := http.StatusOK
	if err := g.Wait(); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Loading dashboard failed",
			log.FieldOperation, api.OpDashboard, log.FieldError, err)
		data.Error = api.Message(err)
		status = http.StatusBadGateway
	}
	if len(data.Recent) == 0 && data.RecentError == "" {
		data.Recent = data.Dashboard.RecentReceipts
	}
	data.Shares = core.Share(data.Dashboard.CategoryBreakdown)
	s.render.page(w, r, status, "dashboard", view{Title: "Dashboard", Data: data})
}

type analyticsData struct {
	Params       DashboardParams
	Dashboard    core.Dashboard
	Shares       []int
	DailyAverage core.Money
	TopVendors   []core.CategoryAmount
	Error        string
}

// handleAnalytics shows the breakdowns of the selected range along with
// the biggest vendors among its receipts.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	params := ParseDashboardParams(r.URL.Query(), core.Last30Days)
	data := analyticsData{Params: params}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		d, err := s.queries.Dashboard(ctx, user.Email, params).Get()
		if err != nil {
			return err
		}
		data.Dashboard = d
		return nil
	})
	g.Go(func() error {
		list, err := s.queries.Receipts(ctx, api.ReceiptFilter{
			UserID:    user.Email,
			Category:  params.Category,
			StartDate: s.now().AddDate(0, 0, -params.TimeRange.Days()).Format(core.DateLayout),
			SortBy:    "amount",
			SortOrder: "desc",
		}).Get()
		if err != nil {
			return err
		}
		data.TopVendors = core.TopVendors(list, 5)
		return nil
	})

	status := http.StatusOK
	if err := g.Wait(); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Loading analytics failed", log.FieldError, err)
		data.Error = api.Message(err)
		status = http.StatusBadGateway
	}
	data.Shares = core.Share(data.Dashboard.CategoryBreakdown)
	data.DailyAverage = core.DailyAverage(data.Dashboard.Metrics.TotalSpending, params.TimeRange)
	s.render.page(w, r, status, "analytics", view{Title: "Analytics", Data: data})
}
