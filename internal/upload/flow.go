// Package upload holds the per-device receipt upload and review flow.
//
// A flow moves upload → processing → review. Selecting a file starts the
// extraction in the background; the review step edits the extracted draft
// and saves it once. Cancel returns to upload from any state.
package upload

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"raseed/internal/api"
	"raseed/internal/core"
	"raseed/internal/extract"
	"raseed/internal/log"
)

type Phase string

const (
	PhaseUpload     Phase = "upload"
	PhaseProcessing Phase = "processing"
	PhaseReview     Phase = "review"
)

var (
	ErrBusy           = errors.New("an upload is already in progress")
	ErrNotInReview    = errors.New("no receipt under review")
	ErrSaveInProgress = errors.New("receipt is already being saved")
)

// Saver issues the wallet pass for a reviewed draft.
type Saver interface {
	SaveReceipt(ctx context.Context, userID string, draft core.ExtractedReceipt) (string, error)
}

// Progress is the byte count of the upload. Total is -1 when unknown.
type Progress struct {
	Sent  int64
	Total int64
}

// Percent returns 0-100, or -1 when the total is unknown.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	pct := int(p.Sent * 100 / p.Total)
	return min(max(pct, 0), 100)
}

// Snapshot is a copy of the flow state for rendering.
type Snapshot struct {
	Phase    Phase
	FileName string
	Progress Progress
	Draft    core.ExtractedReceipt
	// Failure is the extraction error message shown as a banner in review.
	Failure string
	// PassURL is the wallet pass of the last save, kept until the next
	// upload starts.
	PassURL string
	Saving  bool
}

type Flow struct {
	mu        sync.Mutex
	extractor extract.Extractor
	saver     Saver
	logger    *log.Logger
	now       func() time.Time

	phase    Phase
	fileName string
	progress Progress
	draft    core.ExtractedReceipt
	failure  string
	passURL  string
	saving   bool

	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewFlow(extractor extract.Extractor, saver Saver, logger *log.Logger) *Flow {
	return &Flow{
		extractor: extractor,
		saver:     saver,
		logger:    logger.WithComponent(log.ComponentUpload),
		now:       time.Now,
		phase:     PhaseUpload,
	}
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.draft
	d.Items = slices.Clone(f.draft.Items)
	return Snapshot{
		Phase:    f.phase,
		FileName: f.fileName,
		Progress: f.progress,
		Draft:    d,
		Failure:  f.failure,
		PassURL:  f.passURL,
		Saving:   f.saving,
	}
}

// Select moves the flow to processing and extracts file in the background.
// The file body must stay readable after Select returns. The extraction keeps
// ctx's values but not its cancellation; Cancel stops it.
func (f *Flow) Select(ctx context.Context, userID string, file api.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase == PhaseProcessing {
		return ErrBusy
	}

	f.gen++
	gen := f.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	f.phase = PhaseProcessing
	f.fileName = file.Name
	f.progress = Progress{Total: file.Size}
	if file.Size <= 0 {
		f.progress.Total = -1
	}
	f.draft = core.ExtractedReceipt{}
	f.failure = ""
	f.passURL = ""
	f.cancel = cancel
	f.done = done

	f.logger.InfoContext(ctx, "Receipt extraction started",
		log.FieldFileName, file.Name, log.FieldBytes, file.Size)

	go func() {
		defer close(done)
		defer cancel()
		draft, err := f.extractor.Extract(runCtx, userID, file, func(sent, total int64) {
			f.reportProgress(gen, sent, total)
		})
		f.finish(runCtx, gen, draft, err)
	}()
	return nil
}

func (f *Flow) reportProgress(gen uint64, sent, total int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen || f.phase != PhaseProcessing {
		return
	}
	f.progress.Sent = sent
	if total > 0 {
		f.progress.Total = total
	}
}

func (f *Flow) finish(ctx context.Context, gen uint64, draft core.ExtractedReceipt, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen || f.phase != PhaseProcessing {
		// Cancelled or superseded.
		return
	}
	f.phase = PhaseReview
	f.cancel = nil
	if err != nil {
		f.logger.WarnContext(ctx, "Receipt extraction failed", log.FieldError, err)
		f.draft = core.EmptyDraft(f.now())
		f.failure = fmt.Sprintf("We couldn't read this receipt: %s. You can enter the details by hand.", api.Message(err))
		return
	}
	if draft.Items == nil {
		draft.Items = []core.Item{}
	}
	f.draft = draft
	f.failure = ""
	f.logger.InfoContext(ctx, "Receipt extracted",
		log.FieldVendor, draft.Vendor, log.FieldItems, len(draft.Items))
}

// Wait blocks until the running extraction, if any, has finished.
func (f *Flow) Wait(ctx context.Context) error {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Adopt puts draft under review without an upload, as when a manually
// entered receipt comes back categorized.
func (f *Flow) Adopt(draft core.ExtractedReceipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	if draft.Items == nil {
		draft.Items = []core.Item{}
	}
	f.phase = PhaseReview
	f.fileName = ""
	f.progress = Progress{}
	f.draft = draft
	f.failure = ""
	f.passURL = ""
}

// EditItem replaces item i and recomputes the draft amount.
func (f *Flow) EditItem(i int, item core.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase != PhaseReview {
		return ErrNotInReview
	}
	if i < 0 || i >= len(f.draft.Items) {
		return core.ErrInvalidIndex
	}
	items := slices.Clone(f.draft.Items)
	items[i] = item
	f.draft = f.draft.WithItems(items)
	return nil
}

// DeleteItem removes item i, keeping the order of the rest, and recomputes
// the draft amount.
func (f *Flow) DeleteItem(i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase != PhaseReview {
		return ErrNotInReview
	}
	if i < 0 || i >= len(f.draft.Items) {
		return core.ErrInvalidIndex
	}
	items := slices.Delete(slices.Clone(f.draft.Items), i, i+1)
	f.draft = f.draft.WithItems(items)
	return nil
}

// SetDetails updates the receipt-level fields of the draft.
func (f *Flow) SetDetails(vendor, date, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase != PhaseReview {
		return ErrNotInReview
	}
	f.draft.Vendor = vendor
	f.draft.Date = date
	f.draft.Notes = notes
	return nil
}

// Save submits the draft once. On success the flow resets to upload and the
// wallet pass URL is returned; on failure the draft stays under review.
func (f *Flow) Save(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	if f.phase != PhaseReview {
		f.mu.Unlock()
		return "", ErrNotInReview
	}
	if f.saving {
		f.mu.Unlock()
		return "", ErrSaveInProgress
	}
	if len(f.draft.Items) == 0 {
		f.mu.Unlock()
		return "", core.ErrNoItems
	}
	draft := f.draft
	draft.Items = slices.Clone(f.draft.Items)
	gen := f.gen
	f.saving = true
	f.mu.Unlock()

	passURL, err := f.saver.SaveReceipt(ctx, userID, draft)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saving = false
	if err != nil {
		f.logger.ErrorContext(ctx, "Saving receipt failed", log.FieldError, err)
		return "", err
	}
	if gen == f.gen && f.phase == PhaseReview {
		f.resetLocked()
	}
	f.passURL = passURL
	f.logger.InfoContext(ctx, "Receipt saved", log.FieldVendor, draft.Vendor)
	return passURL, nil
}

// Cancel abandons the flow and returns to upload. No backend call is made.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	f.resetLocked()
	f.passURL = ""
}

func (f *Flow) stopLocked() {
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *Flow) resetLocked() {
	f.phase = PhaseUpload
	f.fileName = ""
	f.progress = Progress{}
	f.draft = core.ExtractedReceipt{}
	f.failure = ""
}
