package models

// Position is one row of the futures position-risk endpoint. Quantities
// and prices stay decimal strings; the client does not compute PnL.
type Position struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	LiquidationPrice string `json:"liquidationPrice"`
	Leverage         string `json:"leverage"`
	MarginType       string `json:"marginType"`
	IsolatedMargin   string `json:"isolatedMargin"`
	PositionSide     string `json:"positionSide"`
	Notional         string `json:"notional"`
	UpdateTime       int64  `json:"updateTime"`
}

// AccountAsset is one asset entry of the account endpoint.
type AccountAsset struct {
	Asset            string `json:"asset"`
	WalletBalance    string `json:"walletBalance"`
	UnrealizedProfit string `json:"unrealizedProfit"`
	MarginBalance    string `json:"marginBalance"`
	AvailableBalance string `json:"availableBalance"`
}

// AccountInfo is the subset of the futures account endpoint the client
// exposes.
type AccountInfo struct {
	CanTrade              bool           `json:"canTrade"`
	CanDeposit            bool           `json:"canDeposit"`
	CanWithdraw           bool           `json:"canWithdraw"`
	TotalWalletBalance    string         `json:"totalWalletBalance"`
	TotalUnrealizedProfit string         `json:"totalUnrealizedProfit"`
	TotalMarginBalance    string         `json:"totalMarginBalance"`
	AvailableBalance      string         `json:"availableBalance"`
	Assets                []AccountAsset `json:"assets"`
	UpdateTime            int64          `json:"updateTime"`
}
