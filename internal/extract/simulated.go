package extract

import (
	"context"
	"io"
	"math/rand/v2"
	"time"

	"raseed/internal/api"
	"raseed/internal/core"
)

type sample struct {
	vendor     string
	amount     string
	category   string
	items      []string
	confidence float64
}

var samples = []sample{
	{"Target Store #1234", "89.42", "Groceries", []string{"Milk - $3.99", "Bread - $2.49", "Eggs - $4.99", "Apples - $5.99", "Bananas - $2.99"}, 0.85},
	{"Shell Gas Station", "45.20", "Transport", []string{"Regular Gas - $45.20"}, 0.92},
	{"Starbucks Coffee", "12.50", "Food", []string{"Grande Latte - $5.25", "Blueberry Muffin - $3.25", "Tax - $0.75"}, 0.88},
	{"Amazon.com", "67.89", "Shopping", []string{"Wireless Mouse - $29.99", "USB Cable - $12.99", "Phone Case - $19.99", "Shipping - $4.92"}, 0.79},
}

// Simulated returns one of a few sample receipts after a short delay. Used
// when no extraction service is configured.
type Simulated struct {
	delay func() time.Duration
	pick  func(n int) int
	now   func() time.Time
}

func NewSimulated() *Simulated {
	return &Simulated{
		delay: func() time.Duration { return 2*time.Second + rand.N(time.Second) },
		pick:  rand.IntN,
		now:   time.Now,
	}
}

func (s *Simulated) Extract(ctx context.Context, _ string, f api.File, progress api.ProgressFunc) (core.ExtractedReceipt, error) {
	// Drain the body so progress behaves like a real upload.
	if f.Body != nil {
		n, _ := io.Copy(io.Discard, f.Body)
		if progress != nil {
			progress(n, f.Size)
		}
	}

	t := time.NewTimer(s.delay())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return core.ExtractedReceipt{}, ctx.Err()
	case <-t.C:
	}

	smp := samples[s.pick(len(samples))]
	items := make([]core.Item, 0, len(smp.items))
	for _, line := range smp.items {
		items = append(items, parseItemLine(line, smp.category))
	}
	return core.ExtractedReceipt{
		Vendor:     smp.vendor,
		Date:       s.now().Format(core.DateLayout),
		Amount:     smp.amount,
		Items:      items,
		Confidence: smp.confidence,
	}, nil
}
