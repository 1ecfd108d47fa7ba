// Package domain holds strongly typed identifiers shared across features.
//
// Wrapping uuid.UUID (or a validated string for asset symbols) in distinct
// types makes cross-feature mixups a compile error instead of a runtime bug.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "tranche/pkg/domain-errors"
)

// AccountID identifies a holder, issuer, or operator account.
type AccountID uuid.UUID

// OrderID identifies an order on the book.
type OrderID uuid.UUID

// TradeID identifies one immutable match record.
type TradeID uuid.UUID

// DistributionID identifies a payout distribution.
type DistributionID uuid.UUID

// ZeroAccount is the mint/burn sentinel: movements from it are mints,
// movements to it are burns.
var ZeroAccount = AccountID{}

func (a AccountID) IsZero() bool   { return uuid.UUID(a) == uuid.Nil }
func (a AccountID) String() string { return uuid.UUID(a).String() }

func (o OrderID) String() string        { return uuid.UUID(o).String() }
func (t TradeID) String() string        { return uuid.UUID(t).String() }
func (d DistributionID) String() string { return uuid.UUID(d).String() }

// The UUID-backed identifiers marshal as their canonical string form so
// JSON bodies, audit events, and structured logs all carry readable IDs.

func (a AccountID) MarshalText() ([]byte, error)      { return []byte(a.String()), nil }
func (o OrderID) MarshalText() ([]byte, error)        { return []byte(o.String()), nil }
func (t TradeID) MarshalText() ([]byte, error)        { return []byte(t.String()), nil }
func (d DistributionID) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (a *AccountID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*a = AccountID(u)
	return nil
}

func (o *OrderID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*o = OrderID(u)
	return nil
}

func (t *TradeID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*t = TradeID(u)
	return nil
}

func (d *DistributionID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*d = DistributionID(u)
	return nil
}

// ParseAccountID parses and validates an account identifier. The nil UUID is
// rejected: it is reserved as the mint/burn sentinel.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account id")
	if err != nil {
		return AccountID{}, err
	}
	return AccountID(u), nil
}

// ParseOrderID parses and validates an order identifier.
func ParseOrderID(s string) (OrderID, error) {
	u, err := parseUUID(s, "order id")
	if err != nil {
		return OrderID{}, err
	}
	return OrderID(u), nil
}

// ParseDistributionID parses and validates a distribution identifier.
func ParseDistributionID(s string) (DistributionID, error) {
	u, err := parseUUID(s, "distribution id")
	if err != nil {
		return DistributionID{}, err
	}
	return DistributionID(u), nil
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be nil", what)
	}
	return u, nil
}

// AssetID is the caller-chosen, immutable identifier of a tokenized invoice.
// It doubles as the ticker-like reference used by the order book, so it is a
// short uppercase-alphanumeric string rather than a UUID.
type AssetID string

const maxAssetIDLen = 32

// ParseAssetID validates a caller-supplied asset identifier.
func ParseAssetID(s string) (AssetID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "asset id is required")
	}
	if len(s) > maxAssetIDLen {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "asset id must be at most %d characters", maxAssetIDLen)
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "asset id must be uppercase alphanumeric, '-' or '_'")
		}
	}
	return AssetID(s), nil
}

func (a AssetID) String() string { return string(a) }
