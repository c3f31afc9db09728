// Package index implements the in-memory document store and inverted index
// that back lexical retrieval.
package index

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/studyflow-ai/studyflow/internal/index/tokenizer"
)

// Metadata describes a stored document.
type Metadata struct {
	Subject    string `json:"subject"`
	SourceType string `json:"source_type"`
	Title      string `json:"title"`
}

// Document is an indexed piece of study material. Documents are immutable
// once added and are never deleted.
type Document struct {
	ID       int                 `json:"id"`
	Text     string              `json:"text"`
	Metadata Metadata            `json:"metadata"`
	Tokens   map[string]struct{} `json:"-"`
}

// Stats is a point-in-time snapshot of index size.
type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	BySubject      map[string]int `json:"by_subject"`
	IndexSize      int            `json:"index_size"`
}

// Index holds documents and a token -> document-id posting map. A single
// RWMutex guards both so a reader never observes a document present in one
// structure but absent from the other.
type Index struct {
	mu       sync.RWMutex
	docs     []*Document
	postings map[string]map[int]struct{}
	nextID   int

	logger *slog.Logger
}

// New creates an empty index.
func New(logger *slog.Logger) *Index {
	return &Index{
		postings: make(map[string]map[int]struct{}),
		nextID:   1,
		logger:   logger.With(slog.String("component", "index")),
	}
}

// AddDocument tokenizes text, assigns the next sequential id, and posts
// every distinct token. Empty or token-free text is rejected: the call
// returns (0, false) and nothing is stored.
func (idx *Index) AddDocument(text string, meta Metadata) (int, bool) {
	tokens := tokenizer.TokenSet(text)
	if len(tokens) == 0 {
		return 0, false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	doc := &Document{
		ID:       idx.nextID,
		Text:     text,
		Metadata: meta,
		Tokens:   tokens,
	}
	idx.nextID++

	idx.docs = append(idx.docs, doc)
	for token := range tokens {
		set, ok := idx.postings[token]
		if !ok {
			set = make(map[int]struct{})
			idx.postings[token] = set
		}
		set[doc.ID] = struct{}{}
	}

	idx.logger.Debug("document indexed",
		slog.Int("doc_id", doc.ID),
		slog.String("subject", meta.Subject),
		slog.Int("tokens", len(tokens)),
	)
	return doc.ID, true
}

// Documents returns all stored documents in insertion order. The returned
// slice is a copy; the documents themselves are shared and immutable.
func (idx *Index) Documents() []*Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]*Document, len(idx.docs))
	copy(out, idx.docs)
	return out
}

// DocumentsByMetadata returns documents whose named metadata field matches
// value case-insensitively, in insertion order. Unknown fields match nothing.
func (idx *Index) DocumentsByMetadata(field, value string) []*Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*Document
	for _, doc := range idx.docs {
		var got string
		switch field {
		case "subject":
			got = doc.Metadata.Subject
		case "source_type":
			got = doc.Metadata.SourceType
		case "title":
			got = doc.Metadata.Title
		default:
			return nil
		}
		if strings.EqualFold(got, value) {
			out = append(out, doc)
		}
	}
	return out
}

// DocumentsBySubject returns documents whose subject matches value
// case-insensitively, in insertion order.
func (idx *Index) DocumentsBySubject(subject string) []*Document {
	return idx.DocumentsByMetadata("subject", subject)
}

// Document returns the document with the given id, if present.
func (idx *Index) Document(id int) (*Document, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	// ids are sequential from 1 and docs are append-only
	if id < 1 || id > len(idx.docs) {
		return nil, false
	}
	return idx.docs[id-1], true
}

// PostingSet returns the ids of documents containing token. The returned
// map must not be mutated by callers.
func (idx *Index) PostingSet(token string) map[int]struct{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.postings[token]
}

// Stats reports document counts and the number of distinct indexed tokens.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bySubject := make(map[string]int)
	for _, doc := range idx.docs {
		bySubject[doc.Metadata.Subject]++
	}

	return Stats{
		TotalDocuments: len(idx.docs),
		BySubject:      bySubject,
		IndexSize:      len(idx.postings),
	}
}
