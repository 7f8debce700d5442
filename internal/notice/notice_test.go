package notice

import "testing"

func TestBoardPostAndDismiss(t *testing.T) {
	b := NewBoard(10)

	id := b.Post(LevelError, "Failed to load conversations.")
	b.Post(LevelInfo, "bob sent you a friend request!")

	if got := len(b.List()); got != 2 {
		t.Fatalf("expected 2 notices, got %d", got)
	}
	if !b.Dismiss(id) {
		t.Fatal("expected dismiss to succeed")
	}
	if b.Dismiss(id) {
		t.Error("second dismiss of the same id must report false")
	}

	list := b.List()
	if len(list) != 1 || list[0].Level != LevelInfo {
		t.Errorf("unexpected notices: %+v", list)
	}
}

func TestBoardEvictsOldest(t *testing.T) {
	b := NewBoard(2)
	b.Post(LevelInfo, "one")
	b.Post(LevelInfo, "two")
	b.Post(LevelInfo, "three")

	list := b.List()
	if len(list) != 2 || list[0].Text != "two" || list[1].Text != "three" {
		t.Errorf("unexpected notices after eviction: %+v", list)
	}
}
