package market

import (
	"sort"
	"strings"
)

// AssetClass 决定 bars 请求走哪条 REST 路径。
type AssetClass string

const (
	AssetStock   AssetClass = "stocks"
	AssetFutures AssetClass = "futures"
)

// futuresRoots 当作期货处理的根代码（不带合约月份后缀）。
var futuresRoots = map[string]struct{}{
	"ES":  {},
	"MES": {},
	"NQ":  {},
	"MNQ": {},
	"YM":  {},
	"MYM": {},
	"RTY": {},
	"M2K": {},
}

// NormalizeSymbol 去空白并转大写。
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsFuturesRoot 判断 symbol（大小写不敏感）是否属于已知期货根代码。
func IsFuturesRoot(symbol string) bool {
	_, ok := futuresRoots[NormalizeSymbol(symbol)]
	return ok
}

// Classify 返回 symbol 的资产类别。
func Classify(symbol string) AssetClass {
	if IsFuturesRoot(symbol) {
		return AssetFutures
	}
	return AssetStock
}

// FuturesRoots 返回排序后的期货根代码，便于展示。
func FuturesRoots() []string {
	out := make([]string, 0, len(futuresRoots))
	for k := range futuresRoots {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SymbolSet 启动时确定的订阅集合，进程生命周期内不可变。
type SymbolSet struct {
	order []string
	index map[string]struct{}
}

// NewSymbolSet 规范化、去重并保留首次出现的顺序；空字符串会被忽略。
func NewSymbolSet(symbols ...string) SymbolSet {
	s := SymbolSet{index: make(map[string]struct{}, len(symbols))}
	for _, raw := range symbols {
		sym := NormalizeSymbol(raw)
		if sym == "" {
			continue
		}
		if _, dup := s.index[sym]; dup {
			continue
		}
		s.index[sym] = struct{}{}
		s.order = append(s.order, sym)
	}
	return s
}

// ParseSymbolList 解析逗号分隔的 symbol 列表，例如 "spy, qqq,AAPL"。
func ParseSymbolList(list string) SymbolSet {
	return NewSymbolSet(strings.Split(list, ",")...)
}

// Contains 判断 symbol 是否在集合中（大小写不敏感）。
func (s SymbolSet) Contains(symbol string) bool {
	_, ok := s.index[NormalizeSymbol(symbol)]
	return ok
}

// List 按配置顺序返回副本。
func (s SymbolSet) List() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s SymbolSet) Len() int { return len(s.order) }

// First 返回第一个配置的 symbol；空集合返回 ""。
func (s SymbolSet) First() string {
	if len(s.order) == 0 {
		return ""
	}
	return s.order[0]
}

// Equal 比较两个集合的成员（忽略顺序）。
func (s SymbolSet) Equal(other SymbolSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for sym := range s.index {
		if !other.Contains(sym) {
			return false
		}
	}
	return true
}

func (s SymbolSet) String() string {
	return strings.Join(s.order, ",")
}
