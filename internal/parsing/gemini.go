package parsing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// DefaultModelName is the Gemini model used for PDF extraction.
const DefaultModelName = "gemini-2.0-flash"

// GeminiPDFAdapter extracts transactions from statement PDFs with a
// vision model. It expects the model to return a STRICT JSON array of
// transaction objects.
type GeminiPDFAdapter struct {
	model string
}

// NewGeminiPDFAdapter creates a Gemini-backed PDF adapter. An empty
// model selects DefaultModelName.
func NewGeminiPDFAdapter(model string) *GeminiPDFAdapter {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiPDFAdapter{model: model}
}

const pdfPrompt = `You are a financial statement parser for bank statement PDFs.

Task:
- Parse ALL transactions in the attached bank statement.
- Output STRICT JSON only (no comments, no trailing commas, no extra text).
- Output a JSON array of objects.

Each object must have these fields:
- "date": string, ISO format "YYYY-MM-DD"
- "description": string
- "debit": number or null (money OUT, positive)
- "credit": number or null (money IN, positive)
- "balance": number (running balance after the transaction)

Rules:
- Exactly one of "debit"/"credit" must be non-null per transaction.
- If the statement has a single signed amount column, map negative
  amounts to "debit" and positive amounts to "credit".
- If the document is password protected and cannot be read, output
  exactly the string "PASSWORD_PROTECTED" and nothing else.

Return ONLY valid raw JSON.
Do NOT wrap the response in code fences.
Do NOT use Markdown.
Output must begin with "[" and end with "]".
`

type rawPDFTransaction struct {
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Debit       *float64 `json:"debit"`
	Credit      *float64 `json:"credit"`
	Balance     float64  `json:"balance"`
}

// Parse implements Adapter.
func (a *GeminiPDFAdapter) Parse(ctx context.Context, data []byte, password string) ([]domain.Transaction, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	prompt := pdfPrompt
	if password != "" {
		prompt += fmt.Sprintf("\nThe document password is %q.\n", password)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     data,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, &ParseError{Kind: KindUnreadable, Msg: "empty response from model"}
	}
	if strings.Contains(rawText, "PASSWORD_PROTECTED") {
		return nil, &ParseError{Kind: KindWrongPassword, Msg: "document is password protected"}
	}

	clean := cleanModelJSON(rawText)

	var raw []rawPDFTransaction
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, &ParseError{Kind: KindUnreadable, Msg: fmt.Sprintf("model output is not valid JSON: %v", err)}
	}
	if len(raw) == 0 {
		return nil, &ParseError{Kind: KindEmpty, Msg: "no transactions extracted from PDF"}
	}

	txs := make([]domain.Transaction, 0, len(raw))
	for i, r := range raw {
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return nil, &ParseError{Kind: KindUnreadable, Msg: fmt.Sprintf("transaction %d: invalid date %q", i, r.Date)}
		}
		txs = append(txs, domain.Transaction{
			Date:        date,
			Description: r.Description,
			Debit:       r.Debit,
			Credit:      r.Credit,
			Balance:     r.Balance,
		})
	}
	return txs, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk when the
// model ignores the formatting instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

var _ Adapter = (*GeminiPDFAdapter)(nil)
