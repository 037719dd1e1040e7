package redis

import "strconv"

// Key layout in the coordination store.
const (
	LockPrefix          = "lock:"
	IDCounterPrefix     = "icr:"
	SeckillStockPrefix  = "seckill:stock:"
	SeckillOrderPrefix  = "seckill:order:"
	SeckillWindowPrefix = "seckill:window:"
)

func stockKey(voucherID int64) string {
	return SeckillStockPrefix + strconv.FormatInt(voucherID, 10)
}

func orderSetKey(voucherID int64) string {
	return SeckillOrderPrefix + strconv.FormatInt(voucherID, 10)
}

func windowKey(voucherID int64) string {
	return SeckillWindowPrefix + strconv.FormatInt(voucherID, 10)
}
