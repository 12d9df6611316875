package domain

import (
	"fmt"
	"time"
)

// Outcome is one side of a binary CLOB market. YES and NO prices are
// complementary: a share of each is worth SharePayout together.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// ParseOutcome validates an outcome string.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeYes, OutcomeNo:
		return Outcome(s), nil
	}
	return "", fmt.Errorf("domain: unknown outcome %q", s)
}

// BookSide is one of the two resting lists of the YES-denominated book.
type BookSide string

const (
	SideBid BookSide = "bid"
	SideAsk BookSide = "ask"
)

// Opposite returns the other book side.
func (s BookSide) Opposite() BookSide {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// ParseBookSide validates a book side string.
func ParseBookSide(s string) (BookSide, error) {
	switch BookSide(s) {
	case SideBid, SideAsk:
		return BookSide(s), nil
	}
	return "", fmt.Errorf("domain: unknown book side %q", s)
}

// ClobMarket is a binary market settled through the order book. Shares are
// matched at discrete basis-point prices with collateral escrowed per
// order; resolution redeems winning shares at SharePayout each.
type ClobMarket struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	Authority      string    `json:"authority"`
	ResolutionTime time.Time `json:"resolution_time"`
	Resolved       bool      `json:"resolved"`
	WinningSide    *Outcome  `json:"winning_side"` // set iff Resolved
	YesVolume      int64     `json:"yes_volume"`   // shares credited to takers on the YES side
	NoVolume       int64     `json:"no_volume"`    // shares credited to takers on the NO side
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
