package router

import "strings"

// Bucket maps a set of trigger keywords to a preferred provider order.
type Bucket struct {
	Name      string
	Keywords  []string
	Providers []string
}

// classifier assigns prompts to domain buckets by keyword matching.
type classifier struct {
	buckets []Bucket
}

func newClassifier(buckets []Bucket) *classifier {
	return &classifier{buckets: buckets}
}

// classify returns the provider order of the first bucket whose keywords
// match the prompt, or nil when no bucket matches. Buckets are checked in
// configuration order, so overlapping keyword sets resolve deterministically.
func (c *classifier) classify(prompt string) (string, []string) {
	lowered := strings.ToLower(prompt)
	for _, b := range c.buckets {
		for _, kw := range b.Keywords {
			if strings.Contains(lowered, kw) {
				return b.Name, b.Providers
			}
		}
	}
	return "", nil
}
