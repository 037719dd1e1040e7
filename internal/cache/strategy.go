package cache

import (
	"fmt"

	"flash-sale/internal/domain"
)

// Strategy selects how a read-through handles a miss or an expired entry.
type Strategy int

const (
	// StrategyNullCaching loads on miss and caches absence as an empty
	// string. It does not coalesce concurrent misses.
	StrategyNullCaching Strategy = iota + 1
	// StrategyMutex lets one caller rebuild while the others wait.
	StrategyMutex
	// StrategyLogicalExpire never blocks: stale values are served while a
	// background worker refreshes them.
	StrategyLogicalExpire
)

func (s Strategy) String() string {
	switch s {
	case StrategyNullCaching:
		return "null"
	case StrategyMutex:
		return "mutex"
	case StrategyLogicalExpire:
		return "logical"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps the config and query parameter spelling to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "null", "":
		return StrategyNullCaching, nil
	case "mutex":
		return StrategyMutex, nil
	case "logical":
		return StrategyLogicalExpire, nil
	}
	return 0, fmt.Errorf("unknown cache strategy %q: %w", s, domain.ErrInvalidArgument)
}
