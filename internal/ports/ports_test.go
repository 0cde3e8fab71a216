package ports

import (
	"net"
	"testing"

	"github.com/saadnvd1/agentos/internal/apperr"
)

// fakeStore is an in-memory UsedPorts.
type fakeStore struct {
	used map[int]bool
}

func (f *fakeStore) PortsInUse() (map[int]bool, error) {
	out := make(map[int]bool, len(f.used))
	for p := range f.used {
		out[p] = true
	}
	return out, nil
}

func TestAllocateLowestFree(t *testing.T) {
	fs := &fakeStore{used: map[int]bool{3100: true, 3101: true}}
	a := NewAllocator(fs, 3100, 3110)
	port, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if port != 3102 {
		t.Errorf("port = %d, want 3102", port)
	}
}

func TestAllocateSkipsBoundPorts(t *testing.T) {
	fs := &fakeStore{used: map[int]bool{}}
	a := NewAllocator(fs, 3120, 3130)

	// Occupy the lowest candidate at the OS level.
	l, err := net.Listen("tcp", "127.0.0.1:3120")
	if err != nil {
		t.Skipf("cannot bind 3120: %v", err)
	}
	defer l.Close()

	port, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if port == 3120 {
		t.Error("allocator handed out a port that is already bound")
	}
}

func TestAllocateExhaustion(t *testing.T) {
	fs := &fakeStore{used: map[int]bool{3140: true, 3141: true}}
	a := NewAllocator(fs, 3140, 3141)
	_, err := a.Allocate()
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
}

func TestReleaseRestoresPriorState(t *testing.T) {
	fs := &fakeStore{used: map[int]bool{}}
	a := NewAllocator(fs, 3150, 3160)

	first, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	// The owning row records the port; release is deleting the row.
	fs.used[first] = true
	delete(fs.used, first)

	second, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate after release: %v", err)
	}
	if second != first {
		t.Errorf("after release allocator returned %d, want %d again", second, first)
	}
}
