package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferLeg is one journal row: the signed delta applied to an address
// for one denom as part of a committed multi-send.
type TransferLeg struct {
	ID         int
	TransferID int
	Address    string
	Denom      string
	Amount     decimal.Decimal
	CreatedAt  time.Time
}
