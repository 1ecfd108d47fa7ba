package handler

// SupplyResponse is the body for GET /assets/{assetID}/supply.
type SupplyResponse struct {
	Asset       string `json:"asset"`
	TotalSupply int64  `json:"total_supply"`
}

// AccountResponse is the body for GET /assets/{assetID}/accounts/{accountID}.
type AccountResponse struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Balance int64  `json:"balance"`
	Frozen  bool   `json:"frozen"`
}
