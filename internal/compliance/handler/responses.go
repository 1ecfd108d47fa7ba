package handler

// HeadroomResponse reports the remaining rolling-window allowance for an
// account, computed against the lazily rolled-forward usage.
type HeadroomResponse struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Daily   int64  `json:"daily"`
	Monthly int64  `json:"monthly"`
}
