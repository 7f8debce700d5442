package friendreq

import (
	"testing"

	"github.com/ashureev/chatsync/internal/domain"
)

func req(id string) domain.FriendRequest {
	return domain.FriendRequest{
		ID:     id,
		Sender: domain.Identity{ID: "sender-" + id, Username: "user-" + id},
		Status: domain.FriendRequestPending,
	}
}

func ids(reqs []domain.FriendRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPushIsIdempotent(t *testing.T) {
	in := NewInbox()

	if !in.Push(req("r1")) {
		t.Fatal("expected first push to insert")
	}
	if in.Push(req("r1")) {
		t.Fatal("expected duplicate push to be a no-op")
	}
	if got := in.Len(); got != 1 {
		t.Errorf("expected 1 entry, got %d", got)
	}
}

func TestPushInsertsAtFront(t *testing.T) {
	in := NewInbox()
	in.ApplySnapshot(in.BeginRefresh(), []domain.FriendRequest{req("r1"), req("r2")})

	in.Push(req("r3"))

	if got := ids(in.Pending()); !equal(got, []string{"r3", "r1", "r2"}) {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestPushIgnoresNonPending(t *testing.T) {
	in := NewInbox()
	r := req("r1")
	r.Status = domain.FriendRequestAccepted

	if in.Push(r) {
		t.Error("accepted request must not enter the inbox")
	}
}

func TestRemove(t *testing.T) {
	in := NewInbox()
	in.Push(req("r1"))
	in.Push(req("r2"))

	if !in.Remove("r1") {
		t.Fatal("expected remove to succeed")
	}
	if in.Contains("r1") || in.Len() != 1 {
		t.Errorf("unexpected inbox: %v", ids(in.Pending()))
	}
	if in.Remove("r1") {
		t.Error("second remove must report false")
	}
}

func TestSnapshotKeepsPushAfterToken(t *testing.T) {
	in := NewInbox()
	tok := in.BeginRefresh()

	in.Push(req("r9"))
	in.ApplySnapshot(tok, []domain.FriendRequest{req("r1")})

	if got := ids(in.Pending()); !equal(got, []string{"r9", "r1"}) {
		t.Errorf("expected push to survive the snapshot, got %v", got)
	}
}

func TestSnapshotAndPushOfSameIDDoNotDuplicate(t *testing.T) {
	in := NewInbox()
	tok := in.BeginRefresh()

	in.Push(req("r1"))
	in.ApplySnapshot(tok, []domain.FriendRequest{req("r1"), req("r2")})
	in.Push(req("r2"))

	if got := ids(in.Pending()); !equal(got, []string{"r1", "r2"}) {
		t.Errorf("unexpected inbox: %v", got)
	}
}

func TestSnapshotDropsPushesBeforeToken(t *testing.T) {
	in := NewInbox()
	in.Push(req("old"))

	in.ApplySnapshot(in.BeginRefresh(), []domain.FriendRequest{req("r1")})

	if got := ids(in.Pending()); !equal(got, []string{"r1"}) {
		t.Errorf("snapshot should be authoritative for earlier pushes, got %v", got)
	}
}

func TestSnapshotDoesNotResurrectRemoved(t *testing.T) {
	in := NewInbox()
	in.Push(req("r1"))
	tok := in.BeginRefresh()

	in.Remove("r1")
	in.ApplySnapshot(tok, []domain.FriendRequest{req("r1")})

	if in.Contains("r1") {
		t.Error("request removed after the fetch began must stay removed")
	}
}

func TestClearAllSuppressesEarlierSnapshot(t *testing.T) {
	in := NewInbox()
	tok := in.BeginRefresh()

	in.ClearAll()
	in.Push(req("r5"))
	in.ApplySnapshot(tok, []domain.FriendRequest{req("r1"), req("r2")})

	if got := ids(in.Pending()); !equal(got, []string{"r5"}) {
		t.Errorf("expected only the post-clear push, got %v", got)
	}

	in.ApplySnapshot(in.BeginRefresh(), []domain.FriendRequest{req("r1")})
	if got := ids(in.Pending()); !equal(got, []string{"r1"}) {
		t.Errorf("a snapshot started after the clear must apply, got %v", got)
	}
}

func TestStaleSnapshotIsDiscarded(t *testing.T) {
	in := NewInbox()
	older := in.BeginRefresh()
	in.Push(req("r1"))
	newer := in.BeginRefresh()

	if !in.ApplySnapshot(newer, []domain.FriendRequest{req("r1"), req("r2")}) {
		t.Fatal("expected newer snapshot to apply")
	}
	if in.ApplySnapshot(older, nil) {
		t.Fatal("expected older snapshot to be discarded")
	}
	if in.Len() != 2 {
		t.Errorf("expected 2 entries, got %v", ids(in.Pending()))
	}
}

func TestResetInvalidatesOutstandingSnapshots(t *testing.T) {
	in := NewInbox()
	tok := in.BeginRefresh()
	in.Push(req("r1"))

	in.Reset()
	in.ApplySnapshot(tok, []domain.FriendRequest{req("r2")})

	if in.Len() != 0 {
		t.Errorf("expected empty inbox after reset, got %v", ids(in.Pending()))
	}
}
