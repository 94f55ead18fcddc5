package observation

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the BPE token count of a string.
type TokenCounter interface {
	Count(text string) (int, error)
}

// Cl100kCounter wraps a cl100k-class BPE encoder, the same family used by
// OpenAI's GPT-3.5/GPT-4 tokenizers. The encoding is loaded lazily and
// cached; construction is cheap and safe to call once at startup.
type Cl100kCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewCl100kCounter constructs a TokenCounter backed by tiktoken-go's cl100k_base
// encoding.
func NewCl100kCounter() *Cl100kCounter {
	return &Cl100kCounter{}
}

func (c *Cl100kCounter) load() {
	c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
}

// Count returns the number of cl100k_base tokens in text.
func (c *Cl100kCounter) Count(text string) (int, error) {
	c.once.Do(c.load)
	if c.err != nil {
		return 0, c.err
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}
