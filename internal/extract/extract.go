// Package extract turns an uploaded receipt into an editable draft.
package extract

import (
	"context"
	"time"

	"raseed/internal/api"
	"raseed/internal/core"
)

// Extractor reads a receipt file into a draft.
type Extractor interface {
	Extract(ctx context.Context, userID string, f api.File, progress api.ProgressFunc) (core.ExtractedReceipt, error)
}

// Uploader is the part of the backend client the backend extractor needs.
type Uploader interface {
	UploadReceipt(ctx context.Context, userID string, f api.File, progress api.ProgressFunc) (api.Extraction, error)
}

// Backend delegates extraction to the receipt backend.
type Backend struct {
	up  Uploader
	now func() time.Time
}

func NewBackend(up Uploader) *Backend {
	return &Backend{up: up, now: time.Now}
}

func (b *Backend) Extract(ctx context.Context, userID string, f api.File, progress api.ProgressFunc) (core.ExtractedReceipt, error) {
	ext, err := b.up.UploadReceipt(ctx, userID, f, progress)
	if err != nil {
		return core.ExtractedReceipt{}, err
	}
	return ext.Draft(b.now()), nil
}
