package manpage

import (
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

var wordRe = regexp.MustCompile(`\S+`)

// TokenCounter counts generation-model tokens. It uses the cl100k_base
// encoding when available and falls back to whitespace-delimited words, so
// the pipeline keeps working offline with slightly coarser budgets.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

func (t *TokenCounter) Count(text string) int {
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return len(wordRe.FindAllString(text, -1))
}

// Tail returns a suffix of text of at most k tokens, cut only at word
// boundaries. Used to carry overlap across a chunk split.
func (t *TokenCounter) Tail(text string, k int) string {
	if k <= 0 {
		return ""
	}
	if t.Count(text) <= k {
		return text
	}

	words := wordRe.FindAllString(text, -1)
	kept := 0
	count := 0
	for i := len(words) - 1; i >= 0; i-- {
		wc := t.Count(words[i])
		if count+wc > k && count > 0 {
			break
		}
		count += wc
		kept++
	}
	if kept == 0 {
		return ""
	}
	return strings.Join(words[len(words)-kept:], " ")
}
