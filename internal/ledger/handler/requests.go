package handler

import (
	"strings"

	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// MintRequest is the body for mint and burn calls: one account and an
// amount.
type MintRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`

	parsedAccount id.AccountID
}

func (r *MintRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	account, err := id.ParseAccountID(strings.TrimSpace(r.Account))
	if err != nil {
		return err
	}
	r.parsedAccount = account
	return nil
}

func (r *MintRequest) ParsedAccount() id.AccountID { return r.parsedAccount }

// TransferRequest moves units from the authenticated caller.
type TransferRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`

	parsedTo id.AccountID
}

func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	to, err := id.ParseAccountID(strings.TrimSpace(r.To))
	if err != nil {
		return err
	}
	r.parsedTo = to
	return nil
}

func (r *TransferRequest) ParsedTo() id.AccountID { return r.parsedTo }

// TransferFromRequest is the transfer-agent variant naming both parties.
type TransferFromRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`

	parsedFrom id.AccountID
	parsedTo   id.AccountID
}

func (r *TransferFromRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	from, err := id.ParseAccountID(strings.TrimSpace(r.From))
	if err != nil {
		return err
	}
	to, err := id.ParseAccountID(strings.TrimSpace(r.To))
	if err != nil {
		return err
	}
	r.parsedFrom, r.parsedTo = from, to
	return nil
}

func (r *TransferFromRequest) ParsedFrom() id.AccountID { return r.parsedFrom }
func (r *TransferFromRequest) ParsedTo() id.AccountID   { return r.parsedTo }

// ForcedTransferRequest carries the regulatory override with its
// idempotency key.
type ForcedTransferRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     int64  `json:"amount"`
	TransferID string `json:"transfer_id"`

	parsedFrom id.AccountID
	parsedTo   id.AccountID
}

func (r *ForcedTransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	r.TransferID = strings.TrimSpace(r.TransferID)
	if r.TransferID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer_id is required")
	}
	if len(r.TransferID) > 128 {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer_id must be at most 128 characters")
	}
	from, err := id.ParseAccountID(strings.TrimSpace(r.From))
	if err != nil {
		return err
	}
	to, err := id.ParseAccountID(strings.TrimSpace(r.To))
	if err != nil {
		return err
	}
	r.parsedFrom, r.parsedTo = from, to
	return nil
}

func (r *ForcedTransferRequest) ParsedFrom() id.AccountID { return r.parsedFrom }
func (r *ForcedTransferRequest) ParsedTo() id.AccountID   { return r.parsedTo }

// FrozenRequest toggles a freeze flag.
type FrozenRequest struct {
	Frozen bool `json:"frozen"`
}

func (r *FrozenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}
