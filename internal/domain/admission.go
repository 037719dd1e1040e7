package domain

import (
	"context"
	"fmt"
)

// AdmissionStatus is the outcome of the atomic eligibility check.
// The numeric values are the codes returned by the admission script.
type AdmissionStatus int

const (
	AdmissionAdmitted   AdmissionStatus = 0
	AdmissionOutOfStock AdmissionStatus = 1
	AdmissionDuplicate  AdmissionStatus = 2
	AdmissionNotStarted AdmissionStatus = 3
	AdmissionEnded      AdmissionStatus = 4
)

func (s AdmissionStatus) String() string {
	switch s {
	case AdmissionAdmitted:
		return "admitted"
	case AdmissionOutOfStock:
		return "out_of_stock"
	case AdmissionDuplicate:
		return "duplicate"
	case AdmissionNotStarted:
		return "not_started"
	case AdmissionEnded:
		return "ended"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseAdmissionStatus maps a script result code to a status.
func ParseAdmissionStatus(code int64) (AdmissionStatus, error) {
	s := AdmissionStatus(code)
	switch s {
	case AdmissionAdmitted, AdmissionOutOfStock, AdmissionDuplicate, AdmissionNotStarted, AdmissionEnded:
		return s, nil
	}
	return 0, fmt.Errorf("unexpected admission code %d", code)
}

// AdmissionGate performs the stock, duplicate and time window checks as one
// indivisible operation against the coordination store.
type AdmissionGate interface {
	TryAdmit(ctx context.Context, intent *OrderIntent) (AdmissionStatus, error)
	// Revoke undoes an admission whose intent could not be enqueued.
	Revoke(ctx context.Context, voucherID, userID int64) error
	// Publish seeds the gate's stock counter and sale window for a voucher.
	Publish(ctx context.Context, v *Voucher) error
}
