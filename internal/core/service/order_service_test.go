package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/com2u/Pickup/internal/core/domain"
)

func newOrderFixture(t *testing.T) (*OrderService, *memStore, *countingSink) {
	t.Helper()
	store := newMemStore()
	events := NewEvents()
	sink := &countingSink{}
	events.Register(sink)
	return NewOrderService(store, events, zap.NewNop()), store, sink
}

func TestApplyBatch_AppliesFinalState(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	alice := store.addUser("alice")
	coffee := store.addItem("Coffee", 250)
	tea := store.addItem("Tea", 200)

	batch := []domain.OrderMutation{
		{UserID: alice, ItemID: coffee, Quantity: 2},
		{UserID: alice, ItemID: tea, Quantity: 1},
	}
	ident := domain.Identity{UserID: alice}
	if err := svc.ApplyBatch(context.Background(), ident, batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	got := store.snapshotOrders()
	want := map[orderKey]int{
		{userID: alice, itemID: coffee}: 2,
		{userID: alice, itemID: tea}:    1,
	}
	if !ordersEqual(got, want) {
		t.Errorf("orders = %v, want %v", got, want)
	}
}

func TestApplyBatch_LastWriteWins(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	alice := store.addUser("alice")
	coffee := store.addItem("Coffee", 250)
	ident := domain.Identity{UserID: alice}

	// The same key twice in one batch: the later request wins, so the
	// reservation ends up removed, not set to 3.
	batch := []domain.OrderMutation{
		{UserID: alice, ItemID: coffee, Quantity: 3},
		{UserID: alice, ItemID: coffee, Quantity: 0},
	}
	if err := svc.ApplyBatch(context.Background(), ident, batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if got := store.snapshotOrders(); len(got) != 0 {
		t.Errorf("expected empty store, got %v", got)
	}

	// And in the opposite order the quantity is set.
	batch = []domain.OrderMutation{
		{UserID: alice, ItemID: coffee, Quantity: 0},
		{UserID: alice, ItemID: coffee, Quantity: 3},
	}
	if err := svc.ApplyBatch(context.Background(), ident, batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	got := store.snapshotOrders()
	if got[orderKey{userID: alice, itemID: coffee}] != 3 {
		t.Errorf("expected quantity 3, got %v", got)
	}
}

func TestApplyBatch_UnauthorizedAbortsWholeBatch(t *testing.T) {
	svc, store, sink := newOrderFixture(t)
	alice := store.addUser("alice")
	bob := store.addUser("bob")
	tea := store.addItem("Tea", 200)

	before := store.snapshotOrders()
	batch := []domain.OrderMutation{
		{UserID: alice, ItemID: tea, Quantity: 1},
		{UserID: bob, ItemID: tea, Quantity: 1},
	}
	err := svc.ApplyBatch(context.Background(), domain.Identity{UserID: alice}, batch)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
	var be *domain.BatchError
	if !errors.As(err, &be) || be.Index != 1 {
		t.Errorf("expected failure at request 1, got: %v", err)
	}
	if !ordersEqual(store.snapshotOrders(), before) {
		t.Error("store changed despite rejected batch")
	}
	if sink.count(EventOrdersChanged) != 0 {
		t.Error("event published for rejected batch")
	}
}

func TestApplyBatch_PrivilegedActorMayMutateOthers(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	admin := store.addUser("admin")
	bob := store.addUser("bob")
	tea := store.addItem("Tea", 200)

	batch := []domain.OrderMutation{{UserID: bob, ItemID: tea, Quantity: 2}}
	ident := domain.Identity{UserID: admin, IsPrivileged: true}
	if err := svc.ApplyBatch(context.Background(), ident, batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if got := store.snapshotOrders()[orderKey{userID: bob, itemID: tea}]; got != 2 {
		t.Errorf("expected quantity 2, got %d", got)
	}
}

func TestApplyBatch_NegativeQuantity(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	alice := store.addUser("alice")
	tea := store.addItem("Tea", 200)

	batch := []domain.OrderMutation{{UserID: alice, ItemID: tea, Quantity: -1}}
	err := svc.ApplyBatch(context.Background(), domain.Identity{UserID: alice}, batch)
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
	if len(store.snapshotOrders()) != 0 {
		t.Error("store changed despite rejected batch")
	}
}

func TestApplyBatch_UnknownItemAbortsBatch(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	alice := store.addUser("alice")
	tea := store.addItem("Tea", 200)

	batch := []domain.OrderMutation{
		{UserID: alice, ItemID: tea, Quantity: 1},
		{UserID: alice, ItemID: 9999, Quantity: 1},
	}
	err := svc.ApplyBatch(context.Background(), domain.Identity{UserID: alice}, batch)
	if !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}
	if len(store.snapshotOrders()) != 0 {
		t.Error("store changed despite rejected batch")
	}
}

func TestApplyBatch_EmptyBatchIsNoop(t *testing.T) {
	svc, store, sink := newOrderFixture(t)
	alice := store.addUser("alice")

	if err := svc.ApplyBatch(context.Background(), domain.Identity{UserID: alice}, nil); err != nil {
		t.Fatalf("empty batch failed: %v", err)
	}
	if len(store.snapshotOrders()) != 0 {
		t.Error("store changed by empty batch")
	}
	if sink.count(EventOrdersChanged) != 0 {
		t.Error("event published for empty batch")
	}
}

func TestApplyBatch_Idempotent(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	alice := store.addUser("alice")
	coffee := store.addItem("Coffee", 250)
	tea := store.addItem("Tea", 200)
	ident := domain.Identity{UserID: alice}

	batch := []domain.OrderMutation{
		{UserID: alice, ItemID: coffee, Quantity: 2},
		{UserID: alice, ItemID: tea, Quantity: 0},
	}
	if err := svc.ApplyBatch(context.Background(), ident, batch); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	after := store.snapshotOrders()

	if err := svc.ApplyBatch(context.Background(), ident, batch); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if !ordersEqual(store.snapshotOrders(), after) {
		t.Error("re-applying a successful batch changed the state")
	}
}

// Random valid batches with one invalid request injected at a varying
// position never leave a trace.
func TestApplyBatch_AtomicityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := newMemStore()
		svc := NewOrderService(store, NewEvents(), zap.NewNop())
		admin := store.addUser("admin")
		userIDs := []int64{admin, store.addUser("alice"), store.addUser("bob")}
		itemIDs := []int64{
			store.addItem("Coffee", 250),
			store.addItem("Tea", 200),
			store.addItem("Muffin", 200),
		}
		ident := domain.Identity{UserID: admin, IsPrivileged: true}

		// Seed with a valid batch.
		seedLen := rapid.IntRange(0, 5).Draw(rt, "seed-len")
		seed := make([]domain.OrderMutation, 0, seedLen)
		for i := 0; i < seedLen; i++ {
			seed = append(seed, domain.OrderMutation{
				UserID:   rapid.SampledFrom(userIDs).Draw(rt, "seed-user"),
				ItemID:   rapid.SampledFrom(itemIDs).Draw(rt, "seed-item"),
				Quantity: rapid.IntRange(0, 9).Draw(rt, "seed-qty"),
			})
		}
		if err := svc.ApplyBatch(context.Background(), ident, seed); err != nil {
			rt.Fatalf("seed batch failed: %v", err)
		}
		before := store.snapshotOrders()

		// Build a batch with exactly one poisoned request.
		batchLen := rapid.IntRange(1, 6).Draw(rt, "batch-len")
		badAt := rapid.IntRange(0, batchLen-1).Draw(rt, "bad-at")
		batch := make([]domain.OrderMutation, 0, batchLen)
		for i := 0; i < batchLen; i++ {
			m := domain.OrderMutation{
				UserID:   rapid.SampledFrom(userIDs).Draw(rt, "user"),
				ItemID:   rapid.SampledFrom(itemIDs).Draw(rt, "item"),
				Quantity: rapid.IntRange(0, 9).Draw(rt, "qty"),
			}
			if i == badAt {
				switch rapid.IntRange(0, 2).Draw(rt, "bad-kind") {
				case 0:
					m.Quantity = -rapid.IntRange(1, 5).Draw(rt, "neg")
				case 1:
					m.ItemID = 424242
				default:
					m.UserID = 424242
				}
			}
			batch = append(batch, m)
		}

		err := svc.ApplyBatch(context.Background(), ident, batch)
		if err == nil {
			rt.Fatal("expected poisoned batch to fail")
		}
		if !ordersEqual(store.snapshotOrders(), before) {
			rt.Fatalf("store changed after failed batch: before=%v after=%v", before, store.snapshotOrders())
		}
	})
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	alice := store.addUser("alice")
	tea := store.addItem("Tea", 200)

	for _, qty := range []int{0, -1} {
		err := svc.PlaceOrder(context.Background(), domain.Identity{UserID: alice}, tea, qty)
		if !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Errorf("quantity %d: expected ErrInvalidQuantity, got: %v", qty, err)
		}
	}
	if len(store.snapshotOrders()) != 0 {
		t.Error("store changed despite rejected order")
	}
}

func TestPlaceOrder_UpsertsAndNotifies(t *testing.T) {
	svc, store, sink := newOrderFixture(t)
	alice := store.addUser("alice")
	tea := store.addItem("Tea", 200)
	ident := domain.Identity{UserID: alice}

	if err := svc.PlaceOrder(context.Background(), ident, tea, 1); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if err := svc.PlaceOrder(context.Background(), ident, tea, 4); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	got := store.snapshotOrders()
	if got[orderKey{userID: alice, itemID: tea}] != 4 {
		t.Errorf("expected quantity 4, got %v", got)
	}
	if sink.count(EventOrdersChanged) != 2 {
		t.Errorf("expected 2 events, got %d", sink.count(EventOrdersChanged))
	}
}

func TestApplyBatch_ConcurrentDistinctKeys(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	admin := store.addUser("admin")
	ident := domain.Identity{UserID: admin, IsPrivileged: true}

	const users = 8
	userIDs := make([]int64, users)
	for i := range userIDs {
		userIDs[i] = store.addUser("user")
	}
	tea := store.addItem("Tea", 200)

	var wg sync.WaitGroup
	for _, id := range userIDs {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			batch := []domain.OrderMutation{{UserID: userID, ItemID: tea, Quantity: 1}}
			if err := svc.ApplyBatch(context.Background(), ident, batch); err != nil {
				t.Errorf("ApplyBatch failed: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if got := len(store.snapshotOrders()); got != users {
		t.Errorf("expected %d rows, got %d", users, got)
	}
}
