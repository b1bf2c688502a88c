package core

import "math"

// Investment is one holding as reported by the backend.
type Investment struct {
	ID            int64   `json:"id"`
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	PurchasePrice Money   `json:"purchase_price"`
	CurrentPrice  Money   `json:"current_price"`
	PurchaseDate  Date    `json:"purchase_date"`
}

// CostBasis is quantity times purchase price.
func (i Investment) CostBasis() Money {
	return Money{Cents: int64(math.Round(i.Quantity * float64(i.PurchasePrice.Cents)))}
}

// MarketValue is quantity times current price.
func (i Investment) MarketValue() Money {
	return Money{Cents: int64(math.Round(i.Quantity * float64(i.CurrentPrice.Cents)))}
}

// Gain is market value minus cost basis; negative for a loss.
func (i Investment) Gain() Money {
	return Money{Cents: i.MarketValue().Cents - i.CostBasis().Cents}
}
