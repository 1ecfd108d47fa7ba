package handler

import (
	dErrors "tranche/pkg/domain-errors"
)

// ThresholdsRequest sets asset-wide thresholds. Zero means unrestricted.
type ThresholdsRequest struct {
	MinInvestment int64 `json:"min_investment"`
	MaxHolding    int64 `json:"max_holding"`
	SupplyCap     int64 `json:"supply_cap"`
}

func (r *ThresholdsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.MinInvestment < 0 || r.MaxHolding < 0 || r.SupplyCap < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "thresholds must not be negative")
	}
	return nil
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}

func (r *PauseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// ProfileRequest sets per-account overrides. Zero means no override.
type ProfileRequest struct {
	MinInvestment int64 `json:"min_investment"`
	MaxHolding    int64 `json:"max_holding"`
	Whitelisted   bool  `json:"whitelisted"`
}

func (r *ProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.MinInvestment < 0 || r.MaxHolding < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "overrides must not be negative")
	}
	return nil
}

type SanctionRequest struct {
	Sanctioned bool `json:"sanctioned"`
}

func (r *SanctionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// LimitsRequest sets per-account rolling limits. Zero means unrestricted.
type LimitsRequest struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

func (r *LimitsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Daily < 0 || r.Monthly < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "limits must not be negative")
	}
	return nil
}
