package tokenizer

import (
	"github.com/BaSui01/ticketflow/types"
)

// Character-per-token ratios and per-message overheads used by the
// estimator. CJK text packs roughly 1.5 characters into a token while
// ASCII averages about 4; each chat message adds framing tokens for the
// role marker and separators.
const (
	cjkCharsPerToken   = 1.5
	asciiCharsPerToken = 4.0
	perMessageOverhead = 4
	conversationTail   = 3
	defaultMaxTokens   = 4096
)

// EstimatorTokenizer approximates token counts from character classes.
// It never errors and needs no encoding data, which makes it the
// fallback when no exact tokenizer is registered for a model.
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer creates an estimator for the given model.
// maxTokens <= 0 selects a conservative 4096-token context.
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

// CountTokens estimates tokens for text. Non-empty input always counts
// as at least one token.
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}

	estimated := int(float64(cjk)/cjkCharsPerToken + float64(other)/asciiCharsPerToken)
	if estimated < 1 {
		estimated = 1
	}
	return estimated, nil
}

// CountMessages sums per-message estimates plus framing overhead.
func (e *EstimatorTokenizer) CountMessages(messages []types.Message) (int, error) {
	total := conversationTail
	for _, msg := range messages {
		tokens, err := e.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		total += tokens + perMessageOverhead
	}
	return total, nil
}

func (e *EstimatorTokenizer) MaxTokens() int {
	return e.maxTokens
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

// isCJK reports whether r falls in the CJK unicode blocks the estimator
// treats as dense (ideographs, CJK punctuation, fullwidth forms).
func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // unified ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // extension A
		return true
	case r >= 0x20000 && r <= 0x2A6DF: // extension B
		return true
	case r >= 0xF900 && r <= 0xFAFF: // compatibility ideographs
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK symbols and punctuation
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // halfwidth and fullwidth forms
		return true
	}
	return false
}
