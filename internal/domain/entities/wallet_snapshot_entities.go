package entities

import "time"

// TokenAccount is one mint held by a wallet, balances already scaled by decimals.
type TokenAccount struct {
	Mint     string   `json:"mint"`
	Balance  float64  `json:"balance"`
	Decimals uint8    `json:"decimals"`
	Symbol   string   `json:"symbol,omitempty"`
	Name     string   `json:"name,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	LogoURI  string   `json:"logoURI,omitempty"`
}

// WalletSnapshot is the cached view of a wallet's holdings.
type WalletSnapshot struct {
	Address   string         `json:"address"`
	Balance   float64        `json:"balance"`
	Tokens    []TokenAccount `json:"tokens"`
	SOLPrice  *float64       `json:"solPrice,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// IsFresh reports whether the snapshot is younger than maxAge.
func (w *WalletSnapshot) IsFresh(now time.Time, maxAge time.Duration) bool {
	if w == nil || w.Timestamp == 0 {
		return false
	}
	return now.Sub(time.UnixMilli(w.Timestamp)) < maxAge
}
