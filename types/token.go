package types

// TokenUsage represents token consumption statistics for one generation
// attempt, feeding a ValidatedArtifact's metadata.tokens field and the
// cost-per-request histogram.
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
}

// Add adds another TokenUsage to this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
}

// Tokenizer counts tokens in raw text. EstimateTokenizer below is a
// dependency-free implementation; internal/cost counts with tiktoken-go and
// falls back to it when the tiktoken encoding cannot be initialized.
type Tokenizer interface {
	CountTokens(text string) int
}

// EstimateTokenizer provides a simple character-based token estimation.
type EstimateTokenizer struct{}

// NewEstimateTokenizer creates a new EstimateTokenizer.
func NewEstimateTokenizer() *EstimateTokenizer {
	return &EstimateTokenizer{}
}

// CountTokens counts tokens in text using a CJK-aware character heuristic.
func (t *EstimateTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var chineseCount, otherCount int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			chineseCount++
		} else {
			otherCount++
		}
	}
	tokens := float64(chineseCount)/1.5 + float64(otherCount)/4.0
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}
