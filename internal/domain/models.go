// Package domain provides core domain models and types shared across the
// risk pipeline modules.
package domain

import (
	"fmt"
	"time"
)

// Instrument is the kind of financial instrument backing a position.
type Instrument string

const (
	InstrumentStock Instrument = "STOCK"
	InstrumentCall  Instrument = "CALL"
	InstrumentPut   Instrument = "PUT"
)

// Direction is the side of a position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Variant is the explicit tagged position variant, resolved once at
// ingestion. Calculation code never re-derives it from symbol shape or
// quantity sign.
type Variant struct {
	Instrument Instrument `json:"instrument"`
	Direction  Direction  `json:"direction"`
}

// ParseVariant resolves a stored variant string (e.g. "stock_long",
// "short_call") into an explicit tagged Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "stock_long":
		return Variant{InstrumentStock, DirectionLong}, nil
	case "stock_short":
		return Variant{InstrumentStock, DirectionShort}, nil
	case "long_call":
		return Variant{InstrumentCall, DirectionLong}, nil
	case "long_put":
		return Variant{InstrumentPut, DirectionLong}, nil
	case "short_call":
		return Variant{InstrumentCall, DirectionShort}, nil
	case "short_put":
		return Variant{InstrumentPut, DirectionShort}, nil
	}
	return Variant{}, fmt.Errorf("unknown position variant: %q", s)
}

// String returns the canonical stored form of the variant.
func (v Variant) String() string {
	switch v {
	case Variant{InstrumentStock, DirectionLong}:
		return "stock_long"
	case Variant{InstrumentStock, DirectionShort}:
		return "stock_short"
	case Variant{InstrumentCall, DirectionLong}:
		return "long_call"
	case Variant{InstrumentPut, DirectionLong}:
		return "long_put"
	case Variant{InstrumentCall, DirectionShort}:
		return "short_call"
	case Variant{InstrumentPut, DirectionShort}:
		return "short_put"
	}
	return "unknown"
}

// IsOption reports whether the position variant is an option.
func (v Variant) IsOption() bool {
	return v.Instrument == InstrumentCall || v.Instrument == InstrumentPut
}

// IsShort reports whether the position variant is a short position.
func (v Variant) IsShort() bool {
	return v.Direction == DirectionShort
}

// Multiplier returns the contract multiplier for the variant:
// 100 for options, 1 otherwise.
func (v Variant) Multiplier() float64 {
	if v.IsOption() {
		return 100
	}
	return 1
}

// Position represents a portfolio position with an explicit tagged variant.
type Position struct {
	LastUpdated  time.Time `json:"last_updated"`
	Symbol       string    `json:"symbol"`
	Variant      Variant   `json:"variant"`
	ID           int64     `json:"id"`
	PortfolioID  int64     `json:"portfolio_id"`
	Quantity     float64   `json:"quantity"` // Stored unsigned; the variant carries the side
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	Strike       *float64  `json:"strike,omitempty"`     // Options only
	Expiry       *string   `json:"expiry,omitempty"`     // Options only, YYYY-MM-DD
	Multiplier   float64   `json:"multiplier"`           // 100 for options, 1 otherwise
}

// SignedExposure returns the signed dollar exposure of the position:
// current price × signed quantity × contract multiplier. The sign follows
// the Direction tag (short → negative).
func (p Position) SignedExposure() float64 {
	return p.CurrentPrice * p.SignedQuantity() * p.Multiplier
}

// SignedQuantity returns the quantity with the sign implied by the
// Direction tag. Stored quantities are kept positive; the variant carries
// the side.
func (p Position) SignedQuantity() float64 {
	q := p.Quantity
	if q < 0 {
		q = -q
	}
	if p.Variant.IsShort() {
		return -q
	}
	return q
}

// Portfolio represents a portfolio whose positions flow through the
// pipeline.
type Portfolio struct {
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	ID        int64     `json:"id"`
	Active    bool      `json:"active"`
}

// Factor is a systematic risk dimension proxied by a tradable instrument.
// Static reference data, seeded from the factor catalog.
type Factor struct {
	Name        string `json:"name"`
	ProxySymbol string `json:"proxy_symbol"`
	ID          int64  `json:"id"`
	Active      bool   `json:"active"`
}

// QualityFlag labels a calculation result as full-sample or degraded.
type QualityFlag string

const (
	// QualityFull marks a result computed on the full required sample.
	QualityFull QualityFlag = "full"
	// QualityLimitedHistory marks a result computed on a sample smaller
	// than the regression minimum. The result is still usable.
	QualityLimitedHistory QualityFlag = "limited_history"
)
