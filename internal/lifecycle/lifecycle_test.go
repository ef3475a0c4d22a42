package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// memStore mimics the storage CAS: the status check and update happen under
// one lock, so only the first resolver of an alert wins.
type memStore struct {
	mu     sync.Mutex
	status map[int64]Status
	by     map[int64]int64
	at     map[int64]time.Time
}

func newMemStore(pending ...int64) *memStore {
	s := &memStore{
		status: make(map[int64]Status),
		by:     make(map[int64]int64),
		at:     make(map[int64]time.Time),
	}
	for _, id := range pending {
		s.status[id] = StatusPending
	}
	return s
}

func (s *memStore) ResolveAlert(ctx context.Context, alertID int64, target Status, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.status[alertID]
	if !ok {
		return ErrNotFound
	}
	if current != StatusPending {
		return ErrAlreadyResolved
	}
	s.status[alertID] = target
	s.by[alertID] = userID
	s.at[alertID] = at
	return nil
}

func TestResolveSucceedsOnce(t *testing.T) {
	store := newMemStore(1)
	mgr := NewManager(store, zerolog.Nop())

	res, err := mgr.Resolve(context.Background(), 1, StatusConfirmed, 42)
	if err != nil {
		t.Fatalf("first resolve should succeed: %v", err)
	}
	if res.Status != StatusConfirmed || res.ResolvedBy != 42 || res.ResolvedAt.IsZero() {
		t.Fatalf("resolution fields not set: %+v", res)
	}

	// A second resolve fails regardless of target and leaves the first
	// resolution untouched.
	if _, err := mgr.Resolve(context.Background(), 1, StatusFalsePositive, 99); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("re-resolution must fail with ErrAlreadyResolved, got %v", err)
	}
	if _, err := mgr.Resolve(context.Background(), 1, StatusConfirmed, 99); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("same-value re-resolution must also fail, got %v", err)
	}
	if store.status[1] != StatusConfirmed || store.by[1] != 42 {
		t.Fatalf("first resolution was overwritten: %v by %d", store.status[1], store.by[1])
	}
}

func TestResolveRejectsPendingTarget(t *testing.T) {
	mgr := NewManager(newMemStore(1), zerolog.Nop())

	if _, err := mgr.Resolve(context.Background(), 1, StatusPending, 42); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("pending is not a valid resolution target, got %v", err)
	}
	if _, err := mgr.Resolve(context.Background(), 1, Status("bogus"), 42); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("unknown states are invalid targets, got %v", err)
	}
}

func TestResolveNotFound(t *testing.T) {
	mgr := NewManager(newMemStore(), zerolog.Nop())

	if _, err := mgr.Resolve(context.Background(), 7, StatusConfirmed, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing alert should fail with ErrNotFound, got %v", err)
	}
}

func TestResolveConcurrentSingleWinner(t *testing.T) {
	store := newMemStore(1)
	mgr := NewManager(store, zerolog.Nop())

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := StatusConfirmed
			if i%2 == 1 {
				target = StatusFalsePositive
			}
			_, errs[i] = mgr.Resolve(context.Background(), 1, target, int64(i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrAlreadyResolved) {
			t.Fatalf("losers must see ErrAlreadyResolved, got %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("exactly one concurrent resolve may win, got %d", winners)
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusPending.Valid() || StatusPending.Terminal() {
		t.Fatal("pending is valid and non-terminal")
	}
	if !StatusConfirmed.Terminal() || !StatusFalsePositive.Terminal() {
		t.Fatal("confirmed and false_positive are terminal")
	}
	if Status("resolved").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}
