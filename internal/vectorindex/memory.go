package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process index using brute-force cosine similarity.
type Memory struct {
	mu      sync.RWMutex
	order   []string
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Upsert(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) > 0 {
		if dim := len(m.records[m.order[0]].Vector); dim != len(rec.Vector) {
			return fmt.Errorf("vector dimension mismatch: have %d, got %d", dim, len(rec.Vector))
		}
	}
	if _, ok := m.records[rec.ID]; !ok {
		m.order = append(m.order, rec.ID)
	}
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	rec.Vector = vec
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) Query(_ context.Context, vector []float32, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.order))
	for _, id := range m.order {
		rec := m.records[id]
		matches = append(matches, Match{ID: id, Score: cosine(rec.Vector, vector), Text: rec.Metadata.Text})
	}
	// Stable keeps insertion order among equal scores.
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Len reports the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
