package llm

// modelPricing holds per-model pricing in USD per 1M tokens.
type modelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var priceTable = map[string]modelPricing{
	"claude-sonnet-4-5-20250929": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5-20251001":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"gpt-4o":                     {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":                {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gemini-2.0-flash":           {InputPerMillion: 0.10, OutputPerMillion: 0.40},
}

// Cost estimates the USD price of a response. Unknown models and local
// providers cost nothing.
func (r *CompletionResponse) Cost() float64 {
	pricing, ok := priceTable[r.Model]
	if !ok {
		return 0
	}
	return float64(r.InputTokens)/1_000_000.0*pricing.InputPerMillion +
		float64(r.OutputTokens)/1_000_000.0*pricing.OutputPerMillion
}

// EstimateTokens approximates the token count of text at four characters
// per token.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}
