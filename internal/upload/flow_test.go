package upload

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raseed/internal/api"
	"raseed/internal/core"
	"raseed/internal/log"
)

type result struct {
	draft core.ExtractedReceipt
	err   error
}

// fakeExtractor reports progress and then waits for a result on release.
type fakeExtractor struct {
	release chan result
	started chan struct{}
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{release: make(chan result, 1), started: make(chan struct{}, 1)}
}

func (f *fakeExtractor) Extract(ctx context.Context, _ string, file api.File, progress api.ProgressFunc) (core.ExtractedReceipt, error) {
	if progress != nil {
		progress(file.Size/2, file.Size)
	}
	f.started <- struct{}{}
	select {
	case r := <-f.release:
		return r.draft, r.err
	case <-ctx.Done():
		return core.ExtractedReceipt{}, ctx.Err()
	}
}

type fakeSaver struct {
	calls   atomic.Int32
	passURL string
	err     error
	got     core.ExtractedReceipt
}

func (s *fakeSaver) SaveReceipt(_ context.Context, _ string, d core.ExtractedReceipt) (string, error) {
	s.calls.Add(1)
	s.got = d
	return s.passURL, s.err
}

var today = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

func newTestFlow(ex *fakeExtractor, saver Saver) *Flow {
	f := NewFlow(ex, saver, log.Discard())
	f.now = func() time.Time { return today }
	return f
}

func waitFor(t *testing.T, f *Flow) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
}

func selectFile(t *testing.T, f *Flow, ex *fakeExtractor) {
	t.Helper()
	require.NoError(t, f.Select(context.Background(), "ana@example.com", api.File{Name: "r.jpg", Size: 100, Body: strings.NewReader("x")}))
	<-ex.started
}

func reviewWith(t *testing.T, items ...core.Item) (*Flow, *fakeSaver) {
	t.Helper()
	ex := newFakeExtractor()
	saver := &fakeSaver{passURL: "https://pass.example/p/1"}
	f := newTestFlow(ex, saver)
	selectFile(t, f, ex)
	ex.release <- result{draft: core.ExtractedReceipt{Vendor: "Shop", Date: "2024-03-01", Items: items}}
	waitFor(t, f)
	require.Equal(t, PhaseReview, f.Snapshot().Phase)
	return f, saver
}

func TestFlow_SelectMovesToProcessing(t *testing.T) {
	ex := newFakeExtractor()
	f := newTestFlow(ex, &fakeSaver{})
	assert.Equal(t, PhaseUpload, f.Snapshot().Phase)

	selectFile(t, f, ex)
	snap := f.Snapshot()
	assert.Equal(t, PhaseProcessing, snap.Phase)
	assert.Equal(t, "r.jpg", snap.FileName)
	assert.Equal(t, Progress{Sent: 50, Total: 100}, snap.Progress)
	assert.Equal(t, 50, snap.Progress.Percent())

	err := f.Select(context.Background(), "u", api.File{Name: "other.jpg"})
	assert.ErrorIs(t, err, ErrBusy)

	ex.release <- result{draft: core.ExtractedReceipt{Vendor: "Shop"}}
	waitFor(t, f)
	snap = f.Snapshot()
	assert.Equal(t, PhaseReview, snap.Phase)
	assert.Equal(t, "Shop", snap.Draft.Vendor)
	assert.NotNil(t, snap.Draft.Items)
	assert.Empty(t, snap.Failure)
}

func TestFlow_ExtractionFailureShowsEmptyDraft(t *testing.T) {
	ex := newFakeExtractor()
	f := newTestFlow(ex, &fakeSaver{})
	selectFile(t, f, ex)
	ex.release <- result{err: &api.Error{Op: api.OpUpload, Status: 500, Message: "ocr crashed"}}
	waitFor(t, f)

	snap := f.Snapshot()
	assert.Equal(t, PhaseReview, snap.Phase)
	assert.Empty(t, snap.Draft.Vendor)
	assert.Empty(t, snap.Draft.Amount)
	assert.Empty(t, snap.Draft.Items)
	assert.Equal(t, "2024-03-09", snap.Draft.Date)
	assert.Contains(t, snap.Failure, "ocr crashed")
}

func TestFlow_EditAndDeleteRecomputeTotal(t *testing.T) {
	f, _ := reviewWith(t,
		core.Item{Name: "a", Price: 10, Quantity: 2},
		core.Item{Name: "b", Price: 5},
	)

	require.NoError(t, f.EditItem(1, core.Item{Name: "b", Price: 5}))
	snap := f.Snapshot()
	assert.Equal(t, "25.00", snap.Draft.Amount)
	assert.Equal(t, []string{"a", "b"}, names(snap.Draft.Items))

	require.NoError(t, f.DeleteItem(0))
	snap = f.Snapshot()
	assert.Equal(t, "5.00", snap.Draft.Amount)
	assert.Equal(t, []string{"b"}, names(snap.Draft.Items))

	assert.ErrorIs(t, f.EditItem(3, core.Item{}), core.ErrInvalidIndex)
	assert.ErrorIs(t, f.DeleteItem(-1), core.ErrInvalidIndex)
}

func TestFlow_EditPreservesOrder(t *testing.T) {
	f, _ := reviewWith(t,
		core.Item{Name: "a", Price: 1},
		core.Item{Name: "b", Price: 2},
		core.Item{Name: "c", Price: 3},
	)
	require.NoError(t, f.EditItem(1, core.Item{Name: "B", Price: 4, Quantity: 2}))
	snap := f.Snapshot()
	assert.Equal(t, []string{"a", "B", "c"}, names(snap.Draft.Items))
	assert.Equal(t, "12.00", snap.Draft.Amount)
}

func TestFlow_EditOutsideReview(t *testing.T) {
	f := newTestFlow(newFakeExtractor(), &fakeSaver{})
	assert.ErrorIs(t, f.EditItem(0, core.Item{}), ErrNotInReview)
	assert.ErrorIs(t, f.DeleteItem(0), ErrNotInReview)
	assert.ErrorIs(t, f.SetDetails("v", "d", "n"), ErrNotInReview)
	_, err := f.Save(context.Background(), "u")
	assert.ErrorIs(t, err, ErrNotInReview)
}

func TestFlow_SaveSuccessResets(t *testing.T) {
	f, saver := reviewWith(t, core.Item{Name: "a", Price: 3})
	require.NoError(t, f.SetDetails("Corner Shop", "2024-03-02", "lunch"))

	passURL, err := f.Save(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://pass.example/p/1", passURL)
	assert.EqualValues(t, 1, saver.calls.Load())
	assert.Equal(t, "Corner Shop", saver.got.Vendor)
	assert.Equal(t, "lunch", saver.got.Notes)

	snap := f.Snapshot()
	assert.Equal(t, PhaseUpload, snap.Phase)
	assert.Equal(t, passURL, snap.PassURL)
	assert.Empty(t, snap.Draft.Items)
}

func TestFlow_SaveFailureStaysInReview(t *testing.T) {
	f, saver := reviewWith(t, core.Item{Name: "a", Price: 3})
	saver.err = errors.New("backend down")

	_, err := f.Save(context.Background(), "u")
	require.Error(t, err)
	assert.EqualValues(t, 1, saver.calls.Load())

	snap := f.Snapshot()
	assert.Equal(t, PhaseReview, snap.Phase)
	assert.Len(t, snap.Draft.Items, 1)
	assert.False(t, snap.Saving)
}

func TestFlow_SaveRequiresItems(t *testing.T) {
	f, saver := reviewWith(t)
	_, err := f.Save(context.Background(), "u")
	assert.ErrorIs(t, err, core.ErrNoItems)
	assert.Zero(t, saver.calls.Load())
}

func TestFlow_CancelDuringProcessing(t *testing.T) {
	ex := newFakeExtractor()
	saver := &fakeSaver{}
	f := newTestFlow(ex, saver)
	selectFile(t, f, ex)

	f.Cancel()
	waitFor(t, f)

	snap := f.Snapshot()
	assert.Equal(t, PhaseUpload, snap.Phase)
	assert.Empty(t, snap.FileName)
	assert.Zero(t, saver.calls.Load())

	// A new upload can start right away.
	selectFile(t, f, ex)
	assert.Equal(t, PhaseProcessing, f.Snapshot().Phase)
	f.Cancel()
}

func TestFlow_CancelFromReview(t *testing.T) {
	f, saver := reviewWith(t, core.Item{Name: "a", Price: 1})
	f.Cancel()
	assert.Equal(t, PhaseUpload, f.Snapshot().Phase)
	assert.Zero(t, saver.calls.Load())
}

func TestFlow_Adopt(t *testing.T) {
	f := newTestFlow(newFakeExtractor(), &fakeSaver{})
	f.Adopt(core.ExtractedReceipt{Vendor: "Manual", Amount: "4.00", Items: []core.Item{{Name: "x", Price: 4}}})
	snap := f.Snapshot()
	assert.Equal(t, PhaseReview, snap.Phase)
	assert.Equal(t, "Manual", snap.Draft.Vendor)
	require.NoError(t, f.DeleteItem(0))
	assert.Equal(t, "0.00", f.Snapshot().Draft.Amount)
}

func TestFlow_SnapshotIsACopy(t *testing.T) {
	f, _ := reviewWith(t, core.Item{Name: "a", Price: 1})
	snap := f.Snapshot()
	snap.Draft.Items[0].Name = "changed"
	assert.Equal(t, "a", f.Snapshot().Draft.Items[0].Name)
}

func TestProgress_Percent(t *testing.T) {
	tests := []struct {
		p    Progress
		want int
	}{
		{Progress{Sent: 0, Total: -1}, -1},
		{Progress{Sent: 10, Total: 0}, -1},
		{Progress{Sent: 25, Total: 100}, 25},
		{Progress{Sent: 150, Total: 100}, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.Percent(), "%+v", tt.p)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(newFakeExtractor(), &fakeSaver{}, 2, time.Hour, log.Discard())
	a := r.For("dev-a")
	assert.Same(t, a, r.For("dev-a"))
	assert.NotSame(t, a, r.For("dev-b"))
	assert.Equal(t, 2, r.Size())

	r.For("dev-c")
	assert.Equal(t, 2, r.Size())
}

func names(items []core.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}
