package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raseed/internal/api"
	"raseed/internal/core"
	"raseed/internal/log"
)

var fixedNow = time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC)

type fakeUploader struct {
	ext api.Extraction
	err error
}

func (f fakeUploader) UploadReceipt(_ context.Context, _ string, _ api.File, progress api.ProgressFunc) (api.Extraction, error) {
	if progress != nil {
		progress(10, 10)
	}
	return f.ext, f.err
}

func TestBackend(t *testing.T) {
	var ext api.Extraction
	ext.Categorization.Receipt.Name = "Corner Shop"
	ext.Categorization.Items = []core.Item{{Name: "Tea", Price: 2}}
	b := NewBackend(fakeUploader{ext: ext})
	b.now = func() time.Time { return fixedNow }

	var sent int64
	d, err := b.Extract(context.Background(), "u", api.File{}, func(s, _ int64) { sent = s })
	require.NoError(t, err)
	assert.Equal(t, "Corner Shop", d.Vendor)
	assert.Equal(t, "2024-07-04", d.Date)
	assert.EqualValues(t, 10, sent)

	_, err = NewBackend(fakeUploader{err: errors.New("down")}).Extract(context.Background(), "u", api.File{}, nil)
	assert.Error(t, err)
}

func newTestSimulated(pick int) *Simulated {
	return &Simulated{
		delay: func() time.Duration { return 0 },
		pick:  func(int) int { return pick },
		now:   func() time.Time { return fixedNow },
	}
}

func TestSimulated(t *testing.T) {
	d, err := newTestSimulated(0).Extract(context.Background(), "u", api.File{Body: strings.NewReader("img"), Size: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Target Store #1234", d.Vendor)
	assert.Equal(t, "89.42", d.Amount)
	assert.Equal(t, "2024-07-04", d.Date)
	require.Len(t, d.Items, 5)
	assert.Equal(t, core.Item{Name: "Milk", Price: 3.99, Quantity: 1, CategoryName: "Groceries"}, d.Items[0])
	assert.Equal(t, 0.85, d.Confidence)
}

func TestSimulated_Cancelled(t *testing.T) {
	s := newTestSimulated(1)
	s.delay = func() time.Duration { return time.Hour }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Extract(ctx, "u", api.File{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseItemLine(t *testing.T) {
	tests := []struct {
		line      string
		wantName  string
		wantPrice float64
	}{
		{"Milk - $3.99", "Milk", 3.99},
		{"Regular Gas - $45.20", "Regular Gas", 45.20},
		{"Coffee: 4,50", "Coffee", 4.50},
		{"Mystery item", "Mystery item", 0},
		{"Bag - $0.10", "Bag", 0.10},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			it := parseItemLine(tt.line, "Other")
			assert.Equal(t, tt.wantName, it.Name)
			assert.InDelta(t, tt.wantPrice, it.Price, 0.0001)
			assert.Equal(t, 1.0, it.Quantity)
		})
	}
}

func TestParseModelAnswer(t *testing.T) {
	text := "Here you go:\n```json\n{\"vendor\":\"Cafe\",\"amount\":7.5,\"items\":[\"Latte - $7.50\"],\"confidence\":\"0.9\"}\n```"
	d, err := parseModelAnswer(text, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "Cafe", d.Vendor)
	assert.Equal(t, "7.50", d.Amount)
	assert.Equal(t, "2024-07-04", d.Date)
	assert.Equal(t, 0.9, d.Confidence)
	assert.Equal(t, "Other", d.Items[0].CategoryName)

	d, err = parseModelAnswer(`{}`, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "Unknown Vendor", d.Vendor)
	assert.Equal(t, "0.00", d.Amount)
	assert.Equal(t, 0.5, d.Confidence)

	_, err = parseModelAnswer("", fixedNow)
	assert.ErrorIs(t, err, errNoText)
	_, err = parseModelAnswer("sorry, no receipt", fixedNow)
	assert.ErrorIs(t, err, errNoJSON)
}

type fakeGenerator struct {
	resp *generateResponse
	err  error
	got  *generateRequest
}

func (f *fakeGenerator) generate(_ context.Context, req *generateRequest) (*generateResponse, error) {
	f.got = req
	return f.resp, f.err
}

func textResponse(text string) *generateResponse {
	return &generateResponse{
		Candidates: []candidate{{
			Content: &content{Parts: []part{{Text: text}}},
		}},
	}
}

func TestGemini(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{"vendor":"Deli","date":"2024-07-01","amount":"9.99","items":[],"confidence":0.7}`)}
	g := &Gemini{gen: gen, fallback: newTestSimulated(2), logger: log.Discard(), now: func() time.Time { return fixedNow }}

	d, err := g.Extract(context.Background(), "u", api.File{ContentType: "image/png", Body: strings.NewReader("png-bytes"), Size: 9}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Deli", d.Vendor)
	assert.Equal(t, "2024-07-01", d.Date)

	require.NotNil(t, gen.got)
	parts := gen.got.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
	assert.Equal(t, "cG5nLWJ5dGVz", parts[1].InlineData.Data)
}

func TestGemini_FallsBackToSimulation(t *testing.T) {
	for name, gen := range map[string]*fakeGenerator{
		"call error": {err: errors.New("quota")},
		"no json":    {resp: textResponse("I cannot read this")},
		"empty":      {resp: &generateResponse{}},
	} {
		t.Run(name, func(t *testing.T) {
			g := &Gemini{gen: gen, fallback: newTestSimulated(2), logger: log.Discard(), now: time.Now}
			d, err := g.Extract(context.Background(), "u", api.File{Body: strings.NewReader("x")}, nil)
			require.NoError(t, err)
			assert.Equal(t, "Starbucks Coffee", d.Vendor)
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, KindBackend, "", fakeUploader{}, log.Discard())
	require.NoError(t, err)
	assert.IsType(t, &Backend{}, e)

	for _, key := range []string{"", "  ", placeholderKey} {
		e, err = New(ctx, KindGemini, key, nil, log.Discard())
		require.NoError(t, err)
		assert.IsType(t, &Simulated{}, e)
	}

	e, err = New(ctx, KindGemini, "real-key", nil, log.Discard())
	require.NoError(t, err)
	assert.IsType(t, &Gemini{}, e)
}

func TestRestGenerator(t *testing.T) {
	var gotPath string
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"vendor\":\"Deli\"}"}]}}]}`))
	}))
	defer srv.Close()

	g := restGenerator{client: srv.Client(), endpoint: srv.URL}
	resp, err := g.generate(context.Background(), &generateRequest{
		Contents: []content{{Parts: []part{{Text: "hi"}, {InlineData: &blob{MimeType: "image/png", Data: "AA=="}}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", gotPath)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "image/png", got.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, `{"vendor":"Deli"}`, firstText(resp))
}

func TestRestGenerator_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"API key not valid"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	g := restGenerator{client: srv.Client(), endpoint: srv.URL}
	_, err := g.generate(context.Background(), &generateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "API key not valid")
}
