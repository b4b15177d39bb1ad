package cost

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const estimateEncoding = "cl100k_base"

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// EstimateTokens counts the tokens of text with the cl100k encoding, or approximates four
// characters per token when the encoding cannot be loaded.
func EstimateTokens(text string) int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(estimateEncoding)
		if err == nil {
			encoder = enc
		}
	})

	if encoder == nil {
		return (len(text) + 3) / 4
	}

	return len(encoder.Encode(text, nil, nil))
}

// EstimateRecord prices a hypothetical call before it is made, for CheckBudget.
func (m *Monitor) EstimateRecord(model, prompt string, expectedOutputTokens int) (float64, int, error) {
	inputTokens := EstimateTokens(prompt)

	cost, err := m.CalculateCost(model, inputTokens, expectedOutputTokens)
	if err != nil {
		return 0, 0, err
	}

	return cost, inputTokens, nil
}
