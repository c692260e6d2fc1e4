package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/dstolz/tradesim/internal/domain"
)

// bookEntry is a pending order resting in the in-memory book, ordered
// by (validFrom, priority, insertion sequence). The sequence keeps the
// ordering total and deterministic.
type bookEntry struct {
	order domain.Order
	seq   uint64
}

func entryLess(a, b bookEntry) bool {
	if !a.order.ValidFrom.Equal(b.order.ValidFrom) {
		return a.order.ValidFrom.Before(b.order.ValidFrom)
	}
	if pa, pb := a.order.Priority(), b.order.Priority(); pa != pb {
		return pa < pb
	}
	return a.seq < b.seq
}

// MemoryBookStore is a thread-safe in-memory BookStore keeping pending
// orders per asset in a B-tree with a secondary index for O(log n)
// removal by order id.
type MemoryBookStore struct {
	strategyID string
	mu         sync.RWMutex
	assets     map[domain.Asset]*btree.BTreeG[bookEntry]
	index      map[string]bookEntry // order_id → entry
	archive    []ArchivedOrder
	seq        uint64
}

// NewMemoryBookStore creates an empty in-memory book for one strategy.
func NewMemoryBookStore(strategyID string) *MemoryBookStore {
	return &MemoryBookStore{
		strategyID: strategyID,
		assets:     make(map[domain.Asset]*btree.BTreeG[bookEntry]),
		index:      make(map[string]bookEntry),
	}
}

func (s *MemoryBookStore) tree(asset domain.Asset) *btree.BTreeG[bookEntry] {
	t, ok := s.assets[asset]
	if !ok {
		const degree = 32
		t = btree.NewG[bookEntry](degree, entryLess)
		s.assets[asset] = t
	}
	return t
}

// Insert stores a pending order.
func (s *MemoryBookStore) Insert(o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	entry := bookEntry{order: o, seq: s.seq}
	s.tree(o.Asset).ReplaceOrInsert(entry)
	s.index[o.ID] = entry
	return nil
}

// Remove deletes a pending order by id using the secondary index.
func (s *MemoryBookStore) Remove(orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	delete(s.index, orderID)
	s.tree(entry.order.Asset).Delete(entry)
	return entry.order, nil
}

// Pending returns all pending orders in (validFrom, priority,
// insertion) order per asset.
func (s *MemoryBookStore) Pending() ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]domain.Asset, 0, len(s.assets))
	for a := range s.assets {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	var orders []domain.Order
	for _, a := range assets {
		s.assets[a].Ascend(func(e bookEntry) bool {
			orders = append(orders, e.order)
			return true
		})
	}
	return orders, nil
}

// Executable walks the asset's tree in order and picks the orders in
// force at t whose limit side is satisfiable in [low, high].
func (s *MemoryBookStore) Executable(asset domain.Asset, t time.Time, low, high float64) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, ok := s.assets[asset]
	if !ok {
		return nil, nil
	}

	var orders []domain.Order
	tree.Ascend(func(e bookEntry) bool {
		o := e.order
		if o.ValidFrom.After(t) || o.EffectiveValidUntil().Before(t) {
			return true
		}
		if !executableSide(o.Size, o.Limit, o.StopLimit, low, high) {
			return true
		}
		orders = append(orders, o)
		return true
	})
	return orders, nil
}

// Evict removes every order for asset whose validUntil lies strictly
// before t and returns them for archiving.
func (s *MemoryBookStore) Evict(asset domain.Asset, t time.Time) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, ok := s.assets[asset]
	if !ok {
		return nil, nil
	}

	var expired []bookEntry
	tree.Ascend(func(e bookEntry) bool {
		if e.order.EffectiveValidUntil().Before(t) {
			expired = append(expired, e)
		}
		return true
	})

	orders := make([]domain.Order, 0, len(expired))
	for _, e := range expired {
		tree.Delete(e)
		delete(s.index, e.order.ID)
		orders = append(orders, e.order)
	}
	return orders, nil
}

// Archive appends a terminal order record.
func (s *MemoryBookStore) Archive(rec ArchivedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.StrategyID = s.strategyID
	s.archive = append(s.archive, rec)
	return nil
}

// Archived returns archived orders sorted by (validFrom, asset).
func (s *MemoryBookStore) Archived(includeAll bool) ([]ArchivedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ArchivedOrder, 0, len(s.archive))
	for _, rec := range s.archive {
		if !includeAll && rec.Status != domain.OrderStatusExecuted {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ValidFrom.Equal(out[j].ValidFrom) {
			return out[i].ValidFrom.Before(out[j].ValidFrom)
		}
		return out[i].Asset < out[j].Asset
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryBookStore) Close() error { return nil }

// MemoryPositionStore is a thread-safe in-memory PositionStore.
type MemoryPositionStore struct {
	strategyID string
	mu         sync.RWMutex
	history    []PositionRow
	trades     []TradeRow
}

// NewMemoryPositionStore creates an empty in-memory position store.
func NewMemoryPositionStore(strategyID string) *MemoryPositionStore {
	return &MemoryPositionStore{strategyID: strategyID}
}

// AppendHistory appends one valuation row.
func (s *MemoryPositionStore) AppendHistory(rec PositionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.StrategyID = s.strategyID
	s.history = append(s.history, rec)
	return nil
}

// History returns valuation rows up to asOf (zero means all).
func (s *MemoryPositionStore) History(asOf time.Time) ([]PositionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PositionRow, 0, len(s.history))
	for _, rec := range s.history {
		if !asOf.IsZero() && rec.Time.After(asOf) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// AppendTrade appends one applied fill.
func (s *MemoryPositionStore) AppendTrade(rec TradeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.StrategyID = s.strategyID
	s.trades = append(s.trades, rec)
	return nil
}

// Trades returns applied fills up to asOf (zero means all).
func (s *MemoryPositionStore) Trades(asOf time.Time) ([]TradeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TradeRow, 0, len(s.trades))
	for _, rec := range s.trades {
		if !asOf.IsZero() && rec.Time.After(asOf) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryPositionStore) Close() error { return nil }
