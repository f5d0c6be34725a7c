package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"raseed/internal/api"
	"raseed/internal/core"
	"raseed/internal/log"
)

const (
	geminiEndpoint = "https://generativelanguage.googleapis.com"
	geminiModel    = "gemini-1.5-flash"
	// placeholderKey is the value shipped in sample env files.
	placeholderKey = "your_gemini_api_key_here"
	maxImageBytes  = 20 << 20
	maxAnswerBytes = 1 << 20
)

const extractionPrompt = `Extract the following information from this receipt image and return it as JSON:
{
  "vendor": "store/restaurant name",
  "date": "YYYY-MM-DD format",
  "amount": "total amount as string",
  "category": "suggested category (Groceries, Transport, Utilities, Entertainment, Food, Shopping, Healthcare, Other)",
  "items": ["array of line items with prices"],
  "confidence": "confidence score 0-1"
}

If any field cannot be determined, use empty string or empty array. Be as accurate as possible.`

var (
	errNoText = errors.New("no text in model response")
	errNoJSON = errors.New("no JSON object in model response")
	jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)
)

// Wire types of the generateContent REST call.
type (
	blob struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	}

	part struct {
		Text       string `json:"text,omitempty"`
		InlineData *blob  `json:"inlineData,omitempty"`
	}

	content struct {
		Parts []part `json:"parts"`
	}

	generationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	}

	generateRequest struct {
		Contents         []content        `json:"contents"`
		GenerationConfig generationConfig `json:"generationConfig"`
	}

	candidate struct {
		Content *content `json:"content"`
	}

	generateResponse struct {
		Candidates []candidate `json:"candidates"`
	}
)

// generator is the slice of the Generative Language API used here.
type generator interface {
	generate(ctx context.Context, req *generateRequest) (*generateResponse, error)
}

// restGenerator posts to the v1beta generateContent endpoint. The HTTP
// client carries the API key.
type restGenerator struct {
	client   *http.Client
	endpoint string
}

func (g restGenerator) generate(ctx context.Context, req *generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	url := g.endpoint + "/v1beta/models/" + geminiModel + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generateContent: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return nil, fmt.Errorf("read generateContent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("generateContent: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode generateContent response: %w", err)
	}
	return &out, nil
}

// Gemini reads receipts with Google's Gemini model and falls back to the
// simulated extractor when the call or its answer fails.
type Gemini struct {
	gen      generator
	fallback Extractor
	logger   *log.Logger
	now      func() time.Time
}

func NewGemini(ctx context.Context, apiKey string, fallback Extractor, logger *log.Logger) (*Gemini, error) {
	hc, _, err := htransport.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("generative language client: %w", err)
	}
	return &Gemini{
		gen:      restGenerator{client: hc, endpoint: geminiEndpoint},
		fallback: fallback,
		logger:   logger.WithComponent(log.ComponentExtract),
		now:      time.Now,
	}, nil
}

func (g *Gemini) Extract(ctx context.Context, userID string, f api.File, progress api.ProgressFunc) (core.ExtractedReceipt, error) {
	data, err := io.ReadAll(io.LimitReader(f.Body, maxImageBytes))
	if err != nil {
		return core.ExtractedReceipt{}, fmt.Errorf("read upload: %w", err)
	}
	if progress != nil {
		progress(int64(len(data)), f.Size)
	}

	draft, err := g.extract(ctx, f.ContentType, data)
	if err == nil {
		return draft, nil
	}
	if ctx.Err() != nil {
		return core.ExtractedReceipt{}, ctx.Err()
	}
	g.logger.WarnContext(ctx, "Gemini extraction failed, using simulation", log.FieldError, err)
	return g.fallback.Extract(ctx, userID, api.File{Name: f.Name, ContentType: f.ContentType, Size: -1}, nil)
}

func (g *Gemini) extract(ctx context.Context, mimeType string, data []byte) (core.ExtractedReceipt, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	req := &generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: extractionPrompt},
				{InlineData: &blob{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 1000,
		},
	}

	resp, err := g.gen.generate(ctx, req)
	if err != nil {
		return core.ExtractedReceipt{}, err
	}
	return parseModelAnswer(firstText(resp), g.now())
}

func firstText(resp *generateResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c.Content == nil || len(c.Content.Parts) == 0 {
		return ""
	}
	return c.Content.Parts[0].Text
}

type modelReceipt struct {
	Vendor     string          `json:"vendor"`
	Date       string          `json:"date"`
	Amount     json.RawMessage `json:"amount"`
	Category   string          `json:"category"`
	Items      []string        `json:"items"`
	Confidence json.RawMessage `json:"confidence"`
}

// parseModelAnswer pulls the JSON object out of the model's text and fills
// the gaps: unknown vendor, today's date, 0.00, category Other, 0.5
// confidence.
func parseModelAnswer(text string, now time.Time) (core.ExtractedReceipt, error) {
	if strings.TrimSpace(text) == "" {
		return core.ExtractedReceipt{}, errNoText
	}
	block := jsonBlock.FindString(text)
	if block == "" {
		return core.ExtractedReceipt{}, errNoJSON
	}
	var m modelReceipt
	if err := json.Unmarshal([]byte(block), &m); err != nil {
		return core.ExtractedReceipt{}, fmt.Errorf("decode model JSON: %w", err)
	}

	category := orDefault(m.Category, "Other")
	items := make([]core.Item, 0, len(m.Items))
	for _, line := range m.Items {
		items = append(items, parseItemLine(line, category))
	}

	return core.ExtractedReceipt{
		Vendor:     orDefault(m.Vendor, "Unknown Vendor"),
		Date:       orDefault(m.Date, now.Format(core.DateLayout)),
		Amount:     orDefault(looseString(m.Amount), "0.00"),
		Items:      items,
		Confidence: looseFloat(m.Confidence, 0.5),
	}, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// looseString accepts a JSON string or number.
func looseString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return core.FromFloat(f).String()
	}
	return ""
}

// looseFloat accepts a JSON number or numeric string; zero or invalid
// values give def.
func looseFloat(raw json.RawMessage, def float64) float64 {
	var f float64
	if json.Unmarshal(raw, &f) == nil && f > 0 {
		return f
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && v > 0 {
			return v
		}
	}
	return def
}

var priceSuffix = regexp.MustCompile(`^(.*?)\s*[-:]\s*\$?\s*([0-9]+(?:[.,][0-9]{1,2})?)\s*$`)

// parseItemLine splits "Milk - $3.99" into name and price. Lines without a
// recognisable price keep the whole text as the name.
func parseItemLine(line, category string) core.Item {
	it := core.Item{Name: strings.TrimSpace(line), Quantity: 1, CategoryName: category}
	if m := priceSuffix.FindStringSubmatch(line); m != nil {
		if cents, err := core.ParseDecimalToCents(m[2]); err == nil {
			it.Name = strings.TrimSpace(m[1])
			it.Price = core.Money{Cents: cents}.Float()
		}
	}
	return it
}
