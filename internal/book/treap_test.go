package book

import (
	"testing"
)

func TestTreapAscendDescendOrder(t *testing.T) {
	var tr treap
	prices := []Price{50, 10, 90, 30, 70}
	for i, p := range prices {
		tr.insert(p, LevelHandle{idx: uint32(i)})
	}

	var asc []Price
	tr.ascend(func(p Price, _ LevelHandle) bool {
		asc = append(asc, p)
		return true
	})
	want := []Price{10, 30, 50, 70, 90}
	if len(asc) != len(want) {
		t.Fatalf("ascend length mismatch: got %v want %v", asc, want)
	}
	for i := range want {
		if asc[i] != want[i] {
			t.Fatalf("ascend order mismatch at %d: got %v want %v", i, asc, want)
		}
	}

	var desc []Price
	tr.descend(func(p Price, _ LevelHandle) bool {
		desc = append(desc, p)
		return true
	})
	for i := range want {
		if desc[i] != want[len(want)-1-i] {
			t.Fatalf("descend order mismatch at %d: got %v", i, desc)
		}
	}
}

func TestTreapFindAndErase(t *testing.T) {
	var tr treap
	tr.insert(100, LevelHandle{idx: 1})
	tr.insert(200, LevelHandle{idx: 2})

	if _, ok := tr.find(100); !ok {
		t.Fatal("expected to find price 100")
	}

	tr.erase(100)
	if _, ok := tr.find(100); ok {
		t.Fatal("expected price 100 to be erased")
	}
	if _, ok := tr.find(200); !ok {
		t.Fatal("expected price 200 to remain")
	}
}

func TestTreapInsertReplacesValue(t *testing.T) {
	var tr treap
	tr.insert(10, LevelHandle{idx: 1})
	tr.insert(10, LevelHandle{idx: 2})

	h, ok := tr.find(10)
	if !ok || h.idx != 2 {
		t.Fatalf("expected replaced value idx=2, got %+v ok=%v", h, ok)
	}
}

func TestTreapAscendStopsEarly(t *testing.T) {
	var tr treap
	for i := Price(0); i < 20; i++ {
		tr.insert(i, LevelHandle{idx: uint32(i)})
	}
	count := 0
	tr.ascend(func(p Price, _ LevelHandle) bool {
		count++
		return p < 5
	})
	if count != 6 {
		t.Fatalf("expected walk to stop right after visiting p=5 (6 visits), got %d", count)
	}
}
