package domain

import "errors"

var (
	// ErrNotFound means the backing store confirmed the record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRebuildTimeout is returned by the mutex cache strategy when another
	// caller's rebuild did not finish within the configured wait.
	ErrRebuildTimeout = errors.New("cache rebuild wait exceeded")
	// ErrStoreUnavailable wraps transport and timeout failures talking to the
	// coordination store. Admission never falls back to an unmetered path.
	ErrStoreUnavailable = errors.New("coordination store unavailable")
	// ErrDuplicateOrder is the authoritative per-user-per-voucher conflict
	// detected by the persistent store.
	ErrDuplicateOrder = errors.New("order already exists for user and voucher")
	// ErrOutOfStock is returned when the persistent conditional decrement fails.
	ErrOutOfStock = errors.New("voucher out of stock")
	// ErrQueueFull is returned by bounded in-memory queues.
	ErrQueueFull = errors.New("order queue full")
	// ErrQueueClosed is returned after a queue has been shut down.
	ErrQueueClosed = errors.New("order queue closed")
	// ErrInvalidArgument marks malformed input such as a zero id.
	ErrInvalidArgument = errors.New("invalid argument")
)
