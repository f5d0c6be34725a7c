package http

import (
	"context"
	"sync"
	"time"

	"raseed/internal/api"
	"raseed/internal/cache"
	"raseed/internal/core"
	"raseed/internal/fetch"
)

const (
	queryDashboard = "dashboard"
	queryReceipts  = "receipts"
	queryReceipt   = "receipt"

	// The dashboard figures change slowly; they stay fresh longer than lists.
	dashboardStaleTime = 5 * time.Minute
)

// queries are the cached backend reads behind the pages. Keys always carry
// the user so one user's data is never served to another.
type queries struct {
	backend   Backend
	dashboard *fetch.Query[core.Dashboard]
	receipts  *fetch.Query[[]core.Receipt]
	receipt   *fetch.Query[core.Receipt]
	// search holds one slot per device so a newer search on the receipts
	// page cancels the one still running.
	searchMu sync.Mutex
	search   *cache.LRUCache[*fetch.Slot[[]core.Receipt]]
	manual   *fetch.Mutation[manualInput, api.Extraction]
}

type manualInput struct {
	userID  string
	receipt api.ManualReceipt
}

func newQueries(b Backend, opts fetch.QueryOptions) *queries {
	dashOpts := opts
	dashOpts.StaleTime = max(opts.StaleTime, dashboardStaleTime)
	return &queries{
		backend:   b,
		dashboard: fetch.NewQuery[core.Dashboard](queryDashboard, dashOpts),
		receipts:  fetch.NewQuery[[]core.Receipt](queryReceipts, opts),
		receipt:   fetch.NewQuery[core.Receipt](queryReceipt, opts),
		search:    cache.NewLRUCache[*fetch.Slot[[]core.Receipt]](1000, 30*time.Minute),
		manual: fetch.NewMutation(func(ctx context.Context, in manualInput) (api.Extraction, error) {
			return b.AddManualReceipt(ctx, in.userID, in.receipt)
		}),
	}
}

func (q *queries) cleaners() []cache.Cleaner {
	return []cache.Cleaner{q.dashboard.Cache(), q.receipts.Cache(), q.receipt.Cache(), q.search}
}

func (q *queries) Dashboard(ctx context.Context, userID string, p DashboardParams) fetch.Result[core.Dashboard] {
	key := fetch.Key(queryDashboard, userID, string(p.TimeRange), p.Category)
	return q.dashboard.Get(ctx, key, func(ctx context.Context) (core.Dashboard, error) {
		return q.backend.Dashboard(ctx, userID, p.TimeRange, p.Category)
	})
}

func (q *queries) Receipts(ctx context.Context, f api.ReceiptFilter) fetch.Result[[]core.Receipt] {
	key := fetch.Key(queryReceipts, f.UserID, f.Values())
	return q.receipts.Get(ctx, key, func(ctx context.Context) ([]core.Receipt, error) {
		return q.backend.ListReceipts(ctx, f)
	})
}

func (q *queries) Receipt(ctx context.Context, userID, id string) fetch.Result[core.Receipt] {
	key := fetch.Key(queryReceipt, userID, id)
	return q.receipt.Get(ctx, key, func(ctx context.Context) (core.Receipt, error) {
		return q.backend.GetReceipt(ctx, userID, id)
	})
}

// Search loads the receipts list through the device's slot. A result for a
// search that was superseded comes back as fetch.ErrSuperseded.
func (q *queries) Search(ctx context.Context, deviceID string, f api.ReceiptFilter) fetch.Result[[]core.Receipt] {
	q.searchMu.Lock()
	slot, ok := q.search.Get(deviceID)
	if !ok {
		slot = &fetch.Slot[[]core.Receipt]{}
		q.search.Set(deviceID, slot)
	}
	q.searchMu.Unlock()
	key := fetch.Key(queryReceipts, f.UserID, f.Values())
	return slot.Load(ctx, key, func(ctx context.Context) ([]core.Receipt, error) {
		return q.Receipts(ctx, f).Get()
	})
}

// AddManual submits a hand-typed receipt once.
func (q *queries) AddManual(ctx context.Context, userID string, m api.ManualReceipt, cb fetch.Callbacks[api.Extraction]) fetch.Result[api.Extraction] {
	return q.manual.Run(ctx, manualInput{userID: userID, receipt: m}, cb)
}

// Invalidate drops the cached reads of userID after a write or logout.
func (q *queries) Invalidate(userID string) {
	q.dashboard.Invalidate(fetch.UserPrefix(queryDashboard, userID))
	q.receipts.Invalidate(fetch.UserPrefix(queryReceipts, userID))
	q.receipt.Invalidate(fetch.UserPrefix(queryReceipt, userID))
}
