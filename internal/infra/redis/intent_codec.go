package redis

import (
	"fmt"
	"strconv"
	"time"

	"flash-sale/internal/domain"
)

// Stream entry field names. The admission script writes the same fields
// when it enqueues intents itself.
const (
	fieldUserID    = "userId"
	fieldVoucherID = "voucherId"
	fieldOrderID   = "id"
	fieldCreatedAt = "createdAt"
)

func encodeIntent(intent *domain.OrderIntent) map[string]interface{} {
	return map[string]interface{}{
		fieldUserID:    intent.UserID,
		fieldVoucherID: intent.VoucherID,
		fieldOrderID:   intent.OrderID,
		fieldCreatedAt: intent.CreatedAt.UnixMilli(),
	}
}

func decodeIntent(values map[string]interface{}) (domain.OrderIntent, error) {
	var intent domain.OrderIntent
	var err error
	if intent.UserID, err = intField(values, fieldUserID); err != nil {
		return intent, err
	}
	if intent.VoucherID, err = intField(values, fieldVoucherID); err != nil {
		return intent, err
	}
	if intent.OrderID, err = intField(values, fieldOrderID); err != nil {
		return intent, err
	}
	// createdAt is optional for entries written by older producers.
	if _, ok := values[fieldCreatedAt]; ok {
		ms, err := intField(values, fieldCreatedAt)
		if err != nil {
			return intent, err
		}
		intent.CreatedAt = time.UnixMilli(ms)
	}
	return intent, intent.Validate()
}

func intField(values map[string]interface{}, name string) (int64, error) {
	raw, ok := values[name]
	if !ok {
		return 0, fmt.Errorf("stream entry missing field %q", name)
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("stream entry field %q has type %T", name, raw)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stream entry field %q: %w", name, err)
	}
	return n, nil
}
