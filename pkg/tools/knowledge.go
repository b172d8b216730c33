package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

const (
	KnowledgeBaseName = "knowledge_base_search"
	chunkSize         = 750
	chunkOverlap      = 100
	topChunks         = 4
)

// KnowledgeBase is a keyword-scored index of product documents.
type KnowledgeBase struct {
	chunks []kbChunk
}

type kbChunk struct {
	source string
	text   string
	terms  map[string]int
}

// LoadKnowledgeBase indexes every .txt file in dir.
func LoadKnowledgeBase(dir string) (*KnowledgeBase, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	kb := &KnowledgeBase{}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		kb.Add(filepath.Base(f), string(b))
	}
	return kb, nil
}

// Add splits a document into overlapping chunks and indexes them.
func (kb *KnowledgeBase) Add(source, text string) {
	runes := []rune(text)
	for start := 0; start < len(runes); start += chunkSize - chunkOverlap {
		end := min(start+chunkSize, len(runes))
		chunk := string(runes[start:end])
		kb.chunks = append(kb.chunks, kbChunk{source: source, text: chunk, terms: termCounts(chunk)})
		if end == len(runes) {
			break
		}
	}
}

func terms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termCounts(s string) map[string]int {
	out := map[string]int{}
	for _, t := range terms(s) {
		if len(t) > 2 {
			out[t]++
		}
	}
	return out
}

// Search returns up to topChunks chunks ranked by query-term overlap.
func (kb *KnowledgeBase) Search(query string) []string {
	q := termCounts(query)
	type scored struct {
		i     int
		score int
	}
	var hits []scored
	for i, c := range kb.chunks {
		score := 0
		for t := range q {
			score += c.terms[t]
		}
		if score > 0 {
			hits = append(hits, scored{i, score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	var out []string
	for _, h := range hits[:min(len(hits), topChunks)] {
		c := kb.chunks[h.i]
		out = append(out, fmt.Sprintf("[%s] %s", c.source, strings.TrimSpace(c.text)))
	}
	return out
}

// Tool exposes the knowledge base as a search tool.
func (kb *KnowledgeBase) Tool() Tool {
	return Tool{
		Name:        KnowledgeBaseName,
		Description: "Searches the product documentation knowledge base. Input is a natural language question or product name.",
		Parameters:  stringParams("query", "Question or product name"),
		Invoke: func(_ context.Context, args map[string]any) Result {
			query := stringArg(args, "query", "question", "__arg1")
			if query == "" {
				return Text("Error: query is required")
			}
			hits := kb.Search(query)
			if len(hits) == 0 {
				return Text("No knowledge base entries matched: %s", query)
			}
			return Text("Knowledge base results for: %s\n\n%s", query, strings.Join(hits, "\n\n---\n\n"))
		},
	}
}
