package extract

import (
	"context"
	"strings"

	"raseed/internal/log"
)

const (
	KindBackend = "backend"
	KindGemini  = "gemini"
)

// New picks the extractor for kind. Gemini without a usable key means the
// simulated extractor.
func New(ctx context.Context, kind, geminiKey string, up Uploader, logger *log.Logger) (Extractor, error) {
	logger = logger.WithComponent(log.ComponentExtract)
	switch kind {
	case KindGemini:
		key := strings.TrimSpace(geminiKey)
		sim := NewSimulated()
		if key == "" || key == placeholderKey {
			logger.Warn("No Gemini API key configured, receipts will be simulated")
			return sim, nil
		}
		return NewGemini(ctx, key, sim, logger)
	default:
		return NewBackend(up), nil
	}
}
