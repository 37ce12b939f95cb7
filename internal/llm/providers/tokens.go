package providers

import "unicode/utf8"

// charsPerToken is the deterministic estimation ratio used when a provider
// has no native tokenizer. Roughly four characters per token holds for
// English text across the supported model families.
const charsPerToken = 4

// EstimateTokens estimates the token count of text via a character-length
// heuristic. The result is advisory only and must never feed correctness
// decisions; it exists so cost estimates stay populated for adapters
// without native token counting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	tokens := n / charsPerToken
	if n%charsPerToken != 0 {
		tokens++
	}
	return tokens
}
