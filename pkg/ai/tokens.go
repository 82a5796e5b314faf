package ai

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEncoding is the encoding used for prompt budgeting.
const TokenEncoding = "o200k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(TokenEncoding)
	})
	return enc, encErr
}

// CountTokens returns the number of tokens in s. When the encoding cannot be
// loaded it falls back to a rough estimate of four bytes per token.
func CountTokens(s string) int {
	e, err := encoding()
	if err != nil {
		return (len(s) + 3) / 4
	}
	return len(e.Encode(s, nil, nil))
}

// TruncateTokens cuts s so that it fits into limit tokens.
func TruncateTokens(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	e, err := encoding()
	if err != nil {
		if len(s) <= limit*4 {
			return s
		}
		cut := limit * 4
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut]
	}
	ids := e.Encode(s, nil, nil)
	if len(ids) <= limit {
		return s
	}
	return e.Decode(ids[:limit])
}
