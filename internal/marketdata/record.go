package marketdata

import (
	"github.com/shopspring/decimal"

	facts "settlement-recon/internal/facts/domain"
)

// RawRecord is one unvalidated settlement record as returned by the remote source.
type RawRecord struct {
	EntityID  string          `json:"entityId"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	SoFlag    bool            `json:"soFlag"`
	CadlFlag  bool            `json:"cadlFlag"`
}

// Flags returns the record's qualifying flags.
func (r RawRecord) Flags() facts.RecordFlags {
	return facts.RecordFlags{SoFlag: r.SoFlag, CadlFlag: r.CadlFlag}
}
