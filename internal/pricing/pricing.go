package pricing

import (
	"errors"
	"fmt"
)

var (
	ErrNonPositiveRate   = errors.New("nightly rate must be positive")
	ErrNonPositiveNights = errors.New("stay must last at least one night")
	ErrNegativeFee       = errors.New("service fee must not be negative")
)

type Quote struct {
	NightlyRate int64  `json:"nightly_rate"`
	Nights      int    `json:"nights"`
	ServiceFee  int64  `json:"service_fee"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
}

// Policy prices a stay. Implementations must be deterministic: the ledger
// re-quotes before every status change out of DRAFT.
type Policy interface {
	Quote(nightlyRate int64, nights int, currency string) (Quote, error)
}

// FixedFee charges the nightly rate per night plus one flat service fee.
type FixedFee struct {
	Fee int64
}

func NewFixedFee(fee int64) (*FixedFee, error) {
	if fee < 0 {
		return nil, fmt.Errorf("fee %d: %w", fee, ErrNegativeFee)
	}

	return &FixedFee{Fee: fee}, nil
}

func (p *FixedFee) Quote(nightlyRate int64, nights int, currency string) (Quote, error) {
	if nightlyRate <= 0 {
		return Quote{}, fmt.Errorf("rate %d: %w", nightlyRate, ErrNonPositiveRate)
	}

	if nights <= 0 {
		return Quote{}, fmt.Errorf("nights %d: %w", nights, ErrNonPositiveNights)
	}

	return Quote{
		NightlyRate: nightlyRate,
		Nights:      nights,
		ServiceFee:  p.Fee,
		Total:       nightlyRate*int64(nights) + p.Fee,
		Currency:    currency,
	}, nil
}
