package marketdata

import (
	"context"
	"errors"
	"fmt"

	facts "settlement-recon/internal/facts/domain"
)

// ErrThrottled is returned by a Source when the remote service rejects the
// request for rate reasons. The client handles it internally with a cooldown;
// callers above the client never see it.
var ErrThrottled = errors.New("marketdata: remote throttled")

// Source is the raw transport to the remote settlement service.
type Source interface {
	// Records fetches all raw records for one settlement period.
	// May return an empty slice, ErrThrottled, or a transport error.
	Records(ctx context.Context, date facts.SettlementDate, period facts.Period) ([]RawRecord, error)
}

// FetchError wraps a transport failure for one period fetch. It is retryable:
// nothing has been stored when it is returned.
type FetchError struct {
	Date   facts.SettlementDate
	Period facts.Period
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("marketdata: fetch %s period %d: %v", e.Date, e.Period, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *FetchError) Unwrap() error { return e.Err }
