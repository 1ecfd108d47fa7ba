package models

import (
	"time"

	id "tranche/pkg/domain"
	"tranche/pkg/safe"
)

// Asset is the metadata record for one invoice token. The identifier and
// financial terms are immutable after creation; only Active is mutated,
// and only by the registry.
type Asset struct {
	ID          id.AssetID   `db:"id"`
	Issuer      id.AccountID `db:"issuer"`
	FaceValue   int64        `db:"face_value"`
	MarkupBps   int64        `db:"markup_bps"`
	Maturity    time.Time    `db:"maturity"`
	Description string       `db:"description"`
	Active      bool         `db:"active"`
	CreatedAt   time.Time    `db:"created_at"`
}

// MaturityValue returns faceValue plus the fixed markup. No compounding,
// no day-count convention.
func (a Asset) MaturityValue() (int64, error) {
	markup, err := safe.MulBps(a.FaceValue, a.MarkupBps)
	if err != nil {
		return 0, err
	}
	return safe.Add(a.FaceValue, markup)
}
