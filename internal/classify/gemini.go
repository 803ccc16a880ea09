package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/dvloznov/billfeed/internal/domain"
)

// DefaultModelName is the default Gemini model used for classification.
const DefaultModelName = "gemini-2.5-flash"

// GeminiClassifier is the concrete AI fallback backed by Gemini.
type GeminiClassifier struct {
	apiKey  string
	model   string
	timeout time.Duration
}

// NewGeminiClassifier creates a GeminiClassifier. An empty model name
// selects DefaultModelName; an empty apiKey defers to the environment.
func NewGeminiClassifier(apiKey, model string, timeout time.Duration) *GeminiClassifier {
	if model == "" {
		model = DefaultModelName
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiClassifier{apiKey: apiKey, model: model, timeout: timeout}
}

// Provider implements Classifier.
func (g *GeminiClassifier) Provider() string {
	return "gemini"
}

// aiCandidate is the strict JSON shape the model is asked to return.
type aiCandidate struct {
	Type        string  `json:"type"`
	Money       float64 `json:"money"`
	Fee         float64 `json:"fee"`
	ShopName    string  `json:"shop_name"`
	ShopItem    string  `json:"shop_item"`
	AccountFrom string  `json:"account_from"`
	AccountTo   string  `json:"account_to"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
	OccurredAt  string  `json:"occurred_at"`
}

// Classify implements Classifier by asking Gemini to extract one bill
// from the payload. The call is bounded by the classifier's timeout and
// is cancellable through ctx.
func (g *GeminiClassifier) Classify(ctx context.Context, payload string, categories []string) (*domain.BillCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini classify: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildClassifyPrompt(categories)},
				{Text: "Payload:\n" + payload},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini classify: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("gemini classify: empty response from model")
	}

	clean := cleanModelJSON(rawText)
	if clean == "null" || clean == "" {
		// The model judged the payload non-transactional.
		return nil, nil
	}

	var parsed aiCandidate
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("gemini classify: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}

	return aiCandidateToDomain(parsed)
}

func aiCandidateToDomain(parsed aiCandidate) (*domain.BillCandidate, error) {
	billType := domain.BillExpend
	switch parsed.Type {
	case "income":
		billType = domain.BillIncome
	case "transfer":
		billType = domain.BillTransfer
	case "expend", "":
	default:
		return nil, fmt.Errorf("gemini classify: unknown bill type %q", parsed.Type)
	}

	cand := &domain.BillCandidate{
		Type:        billType,
		Money:       decimal.NewFromFloat(parsed.Money),
		Fee:         decimal.NewFromFloat(parsed.Fee),
		ShopName:    parsed.ShopName,
		ShopItem:    parsed.ShopItem,
		AccountFrom: parsed.AccountFrom,
		AccountTo:   parsed.AccountTo,
		Currency:    parsed.Currency,
		CateName:    parsed.Category,
	}

	if parsed.OccurredAt != "" {
		// The model is asked for RFC 3339; tolerate a plain date too.
		if ts, err := time.Parse(time.RFC3339, parsed.OccurredAt); err == nil {
			cand.OccurredAt = ts
		} else if ts, err := time.Parse("2006-01-02", parsed.OccurredAt); err == nil {
			cand.OccurredAt = ts
		}
	}

	return cand, nil
}
