package store

import (
	"errors"
	"sync"
	"time"

	"market-bridge-go/market"
)

// ErrNotFound 该 symbol 自进程启动以来还没有收到任何行情。
var ErrNotFound = errors.New("no tick received for symbol")

// Store 维护订阅集合内每个 symbol 的最新 Tick。
// 只有行情流 goroutine 写入；HTTP handler 通过只读方法并发读取。
type Store struct {
	symbols market.SymbolSet

	mu         sync.RWMutex
	ticks      map[string]market.Tick
	lastUpdate time.Time

	now func() time.Time
}

func New(symbols market.SymbolSet) *Store {
	return &Store{
		symbols: symbols,
		ticks:   make(map[string]market.Tick, symbols.Len()),
		now:     time.Now,
	}
}

// ApplyTrade 覆盖成交字段；symbol 不在订阅集合内时不写入并返回 false。
func (s *Store) ApplyTrade(u market.TradeUpdate) bool {
	sym := market.NormalizeSymbol(u.Symbol)
	if !s.symbols.Contains(sym) {
		return false
	}
	u.Symbol = sym
	now := s.now()

	s.mu.Lock()
	s.ticks[sym] = s.ticks[sym].ApplyTrade(u, now)
	s.lastUpdate = now
	s.mu.Unlock()
	return true
}

// ApplyQuote 覆盖报价字段；symbol 不在订阅集合内时不写入并返回 false。
func (s *Store) ApplyQuote(u market.QuoteUpdate) bool {
	sym := market.NormalizeSymbol(u.Symbol)
	if !s.symbols.Contains(sym) {
		return false
	}
	u.Symbol = sym
	now := s.now()

	s.mu.Lock()
	s.ticks[sym] = s.ticks[sym].ApplyQuote(u, now)
	s.lastUpdate = now
	s.mu.Unlock()
	return true
}

// Latest 返回该 symbol 最新 Tick 的副本。
func (s *Store) Latest(symbol string) (market.Tick, bool) {
	sym := market.NormalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.ticks[sym]
	return t, ok
}

// LastUpdate 任意 symbol 最近一次写入的本地时间；从未写入时为零值。
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Len 已有数据的 symbol 数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ticks)
}

// Subscribed 返回不可变的订阅集合。
func (s *Store) Subscribed() market.SymbolSet {
	return s.symbols
}
