package memory

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/comigor/save-go/internal/conversation"
)

// TokenCounter counts the tokens of a text.
type TokenCounter interface {
	Count(text string) (int, error)
}

// TiktokenCounter counts with a BPE encoding. The encoding is loaded on first use; if
// loading fails every Count returns the error and callers fall back to estimation.
type TiktokenCounter struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewTiktokenCounter creates a counter for the named encoding (e.g. cl100k_base).
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding}
}

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(text string) (int, error) {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding(c.encoding)
	})
	if c.err != nil {
		return 0, c.err
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}

// CharCounter approximates four characters per token.
type CharCounter struct{}

// Count implements TokenCounter.
func (CharCounter) Count(text string) (int, error) {
	return len(text) / 4, nil
}

// estimateTokens sums message content tokens. If the counter fails on any message the
// whole estimate falls back to total characters / 4.
func estimateTokens(c TokenCounter, msgs []conversation.Message) int {
	total := 0
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		n, err := c.Count(m.Content)
		if err != nil {
			chars := 0
			for _, m := range msgs {
				chars += len(m.Content)
			}
			return chars / 4
		}
		total += n
	}
	return total
}
