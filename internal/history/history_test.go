package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

func result(id string, score int) *types.AnalysisResult {
	return &types.AnalysisResult{
		ID:           id,
		OverallScore: score,
		SkinAge:      30,
		Concerns: []types.Concern{
			{Name: "acne", Score: 55, Status: types.StatusNeedsImprovement},
		},
		Recommendations: []string{"Use sunscreen"},
		Provenance:      types.Provenance{Source: types.SourceMock, Mock: true},
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	for i := 1; i <= 3; i++ {
		if err := m.Save(ctx, OriginCamera, result(fmt.Sprintf("r%d", i), 70+i)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	entries, err := m.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Result.ID != "r3" || entries[1].Result.ID != "r2" {
		t.Errorf("Unexpected order: %s, %s", entries[0].Result.ID, entries[1].Result.ID)
	}
}

func TestMemoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	for _, id := range []string{"a", "b", "c"} {
		m.Save(ctx, OriginUpload, result(id, 80))
	}

	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected oldest entry evicted, got %v", err)
	}
	entries, _ := m.List(ctx, 0)
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}
}

func TestMemoryIsolatesStoredResults(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	r := result("x", 80)
	m.Save(ctx, OriginBatch, r)
	r.Concerns[0].Score = 1

	e, err := m.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Result.Concerns[0].Score != 55 {
		t.Error("Stored result changed with the caller's copy")
	}
	if e.Origin != OriginBatch {
		t.Errorf("Expected origin batch, got %q", e.Origin)
	}
}

func TestMemoryRejectsMissingID(t *testing.T) {
	if err := NewMemory(1).Save(context.Background(), OriginCamera, &types.AnalysisResult{}); err == nil {
		t.Error("Expected error for result without id")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "sqlite", "", nil); err == nil {
		t.Error("Expected error for unknown driver")
	}
	s, err := Open(context.Background(), "memory", "", nil)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("Expected *Memory, got %T", s)
	}
}
