package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/com2u/Pickup/internal/core/domain"
)

// In-memory fakes for the storage ports. They mirror the transactional
// contract of the MySQL adapters: a batch is validated before anything
// is applied, and an injected failure leaves state untouched.

type orderKey struct {
	userID int64
	itemID int64
}

type memStore struct {
	mu       sync.Mutex
	users    map[int64]domain.User
	items    map[int64]domain.Item
	orders   map[orderKey]int
	inserted map[orderKey]int64
	entries  []domain.LedgerEntry
	seq      int64
	nextID   int64

	failBatch      error
	failSettlement error
	failAppend     error
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]domain.User),
		items:    make(map[int64]domain.Item),
		orders:   make(map[orderKey]int),
		inserted: make(map[orderKey]int64),
	}
}

func (m *memStore) addUser(username string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.users[m.nextID] = domain.User{
		ID:        m.nextID,
		Username:  username,
		CreatedAt: time.Now(),
	}
	return m.nextID
}

func (m *memStore) addUserWithHash(username, hash string) int64 {
	id := m.addUser(username)
	m.mu.Lock()
	u := m.users[id]
	u.PasswordHash = hash
	m.users[id] = u
	m.mu.Unlock()
	return id
}

func (m *memStore) addItem(name string, price domain.Cents) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.items[m.nextID] = domain.Item{
		ID:        m.nextID,
		Name:      name,
		Price:     price,
		CreatedAt: time.Now(),
	}
	return m.nextID
}

func (m *memStore) snapshotOrders() map[orderKey]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[orderKey]int, len(m.orders))
	for k, v := range m.orders {
		snap[k] = v
	}
	return snap
}

func ordersEqual(a, b map[orderKey]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// ---- port.OrderRepository ----

func (m *memStore) ListOrders(ctx context.Context) ([]domain.OpenOrderView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var views []domain.OpenOrderView
	for k, qty := range m.orders {
		views = append(views, domain.OpenOrderView{
			OpenOrder: domain.OpenOrder{
				ID:       m.inserted[k],
				UserID:   k.userID,
				ItemID:   k.itemID,
				Quantity: qty,
			},
			ItemName: m.items[k.itemID].Name,
			Username: m.users[k.userID].Username,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID > views[j].ID })
	return views, nil
}

func (m *memStore) ApplyBatch(ctx context.Context, batch []domain.OrderMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failBatch != nil {
		err := m.failBatch
		m.failBatch = nil
		return err
	}

	for i, mt := range batch {
		if _, ok := m.users[mt.UserID]; !ok {
			return &domain.BatchError{Index: i, Err: domain.ErrUserNotFound}
		}
		if _, ok := m.items[mt.ItemID]; !ok {
			return &domain.BatchError{Index: i, Err: domain.ErrItemNotFound}
		}
	}

	for _, mt := range batch {
		key := orderKey{userID: mt.UserID, itemID: mt.ItemID}
		if mt.Quantity == 0 {
			delete(m.orders, key)
			delete(m.inserted, key)
			continue
		}
		if _, ok := m.orders[key]; !ok {
			m.seq++
			m.inserted[key] = m.seq
		}
		m.orders[key] = mt.Quantity
	}
	return nil
}

// ---- port.ItemRepository ----

func (m *memStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []domain.Item
	for _, it := range m.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *memStore) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		return &it, nil
	}
	return nil, nil
}

func (m *memStore) CreateItem(ctx context.Context, name string, price domain.Cents) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	it := domain.Item{
		ID:        m.nextID,
		Name:      name,
		Price:     price,
		CreatedAt: time.Now(),
	}
	m.items[it.ID] = it
	return &it, nil
}

func (m *memStore) UpdateItem(ctx context.Context, id int64, name string, price domain.Cents) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	it.Name = name
	it.Price = price
	m.items[id] = it
	return &it, nil
}

func (m *memStore) DeleteItem(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrItemNotFound
	}
	delete(m.items, id)
	for k := range m.orders {
		if k.itemID == id {
			delete(m.orders, k)
			delete(m.inserted, k)
		}
	}
	return nil
}

// ---- port.UserRepository ----

func (m *memStore) CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return nil, domain.ErrUsernameTaken
		}
	}
	m.nextID++
	u := domain.User{
		ID:           m.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	m.users[u.ID] = u
	return &u, nil
}

func (m *memStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *memStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []domain.User
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *memStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	m.users[id] = u
	return nil
}

func (m *memStore) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

// ---- port.LedgerRepository ----

func (m *memStore) Append(ctx context.Context, userID int64, amount domain.Cents, description string) (*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAppend != nil {
		err := m.failAppend
		m.failAppend = nil
		return nil, err
	}

	entry := domain.LedgerEntry{
		ID:          int64(len(m.entries) + 1),
		UserID:      userID,
		Amount:      amount,
		Description: description,
		EntryRef:    uuid.New(),
		CreatedAt:   time.Now().UTC(),
	}
	m.entries = append(m.entries, entry)
	return &entry, nil
}

func (m *memStore) CurrentBalance(ctx context.Context, userID int64) (domain.Cents, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(userID), nil
}

func (m *memStore) balanceLocked(userID int64) domain.Cents {
	var sum domain.Cents
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum
}

func (m *memStore) Balances(ctx context.Context) ([]domain.BalanceView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var balances []domain.BalanceView
	for _, u := range m.users {
		balances = append(balances, domain.BalanceView{
			UserID:   u.ID,
			Username: u.Username,
			Balance:  m.balanceLocked(u.ID),
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Username < balances[j].Username })
	return balances, nil
}

func (m *memStore) History(ctx context.Context) ([]domain.LedgerEntryView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]domain.LedgerEntryView, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		views = append(views, domain.LedgerEntryView{
			LedgerEntry: e,
			Username:    m.users[e.UserID].Username,
		})
	}
	return views, nil
}

// ---- port.SettlementRepository ----

func (m *memStore) ConfirmDelivery(ctx context.Context, deliveringUserID int64) (*domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSettlement != nil {
		err := m.failSettlement
		m.failSettlement = nil
		return nil, err
	}

	if _, ok := m.users[deliveringUserID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	if len(m.orders) == 0 {
		return nil, domain.ErrNothingToSettle
	}

	totalsByUser := make(map[int64]domain.Cents)
	for k, qty := range m.orders {
		totalsByUser[k.userID] += domain.Cents(int64(qty)) * m.items[k.itemID].Price
	}

	settlement := domain.Settlement{
		Ref:              uuid.New(),
		DeliveringUserID: deliveringUserID,
		SettledAt:        time.Now().UTC(),
	}
	for userID, amount := range totalsByUser {
		settlement.Totals = append(settlement.Totals, domain.ConsumerTotal{
			UserID:   userID,
			Username: m.users[userID].Username,
			Amount:   amount,
		})
		settlement.Total += amount
	}
	sort.Slice(settlement.Totals, func(i, j int) bool {
		return settlement.Totals[i].Username < settlement.Totals[j].Username
	})

	for _, t := range settlement.Totals {
		m.entries = append(m.entries, domain.LedgerEntry{
			ID:          int64(len(m.entries) + 1),
			UserID:      t.UserID,
			Amount:      -t.Amount,
			Description: domain.DescriptionOrderPayment,
			EntryRef:    settlement.Ref,
			CreatedAt:   settlement.SettledAt,
		})
	}
	m.entries = append(m.entries, domain.LedgerEntry{
		ID:          int64(len(m.entries) + 1),
		UserID:      deliveringUserID,
		Amount:      settlement.Total,
		Description: domain.DescriptionPaymentReceived,
		EntryRef:    settlement.Ref,
		CreatedAt:   settlement.SettledAt,
	})

	m.orders = make(map[orderKey]int)
	m.inserted = make(map[orderKey]int64)
	return &settlement, nil
}

// countingSink records published events.
type countingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *countingSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *countingSink) count(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
