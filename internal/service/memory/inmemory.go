package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// InMemoryStore is a process-local backend for development and tests. Recall
// ranks memories by how many distinct query terms they share.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Record)}
}

func (s *InMemoryStore) Remember(_ context.Context, items []Message, userID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]Record, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		record := Record{ID: uuid.NewString(), Memory: item.Content, CreatedAt: time.Now().UTC()}
		s.records[userID] = append(s.records[userID], record)
		added = append(added, record)
	}
	return added, nil
}

func (s *InMemoryStore) Recall(_ context.Context, query, userID string, limit int) ([]Record, error) {
	s.mu.RLock()
	stored := append([]Record(nil), s.records[userID]...)
	s.mu.RUnlock()

	terms := tokenize(query)
	if len(terms) == 0 || len(stored) == 0 {
		return nil, nil
	}

	type scored struct {
		record Record
		order  int
	}
	matches := make([]scored, 0, len(stored))
	for i, record := range stored {
		memoryTerms := tokenize(record.Memory)
		shared := 0
		for term := range terms {
			if _, ok := memoryTerms[term]; ok {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		record.Score = float64(shared) / float64(len(terms))
		matches = append(matches, scored{record: record, order: i})
	}

	// Best score first; newer memories win ties.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].record.Score != matches[j].record.Score {
			return matches[i].record.Score > matches[j].record.Score
		}
		return matches[i].order > matches[j].order
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]Record, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.record)
	}
	return out, nil
}

func (s *InMemoryStore) ListAll(_ context.Context, userID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records[userID]...), nil
}

func (s *InMemoryStore) Close() error { return nil }

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		terms[f] = struct{}{}
	}
	return terms
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"my": true, "me": true, "to": true, "of": true, "and": true, "or": true,
	"in": true, "on": true, "it": true, "do": true, "you": true, "what": true,
}
