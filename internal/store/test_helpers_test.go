package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/vere/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestFacts builds n event facts numbered from first.
func createTestFacts(first uint64, n int) []ir.Fact {
	facts := make([]ir.Fact, n)
	for i := range facts {
		eve := first + uint64(i)
		facts[i] = ir.Fact{
			Eve: eve,
			Mug: uint32(eve * 7),
			Event: ir.Event{
				Wire: ir.Wire{"term", "1"},
				Card: ir.Card{Tag: "put", Data: ir.Map{"key": ir.String("k"), "value": ir.Int(int64(eve))}},
				Time: int64(eve) * 1000,
			},
		}
	}
	return facts
}
