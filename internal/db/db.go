package db

import (
	"database/sql"
	"fmt"

	"token-ledger/internal/config"
	"token-ledger/internal/models"
	"token-ledger/internal/settlement"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// LedgerDB is the balance snapshot provider, denomination registry and
// transfer journal backing the settlement service.
type LedgerDB interface {
	BeginTx() (*sql.Tx, error)
	// GetBalancesForUpdate loads and row-locks every balance held by the
	// given addresses. Addresses should be passed in sorted order so
	// concurrent submissions lock rows in a consistent order.
	GetBalancesForUpdate(tx *sql.Tx, addresses []string) ([]settlement.Balance, error)
	GetDenomDefinitions(denoms []string) ([]settlement.DenomDefinition, error)
	ApplyChange(tx *sql.Tx, address, denom string, delta decimal.Decimal) error
	InsertTransfer(tx *sql.Tx) (int, error)
	InsertTransferLeg(tx *sql.Tx, transferID int, address, denom string, amount decimal.Decimal) error
	GetBalance(address string) ([]settlement.Coin, error)
	GetTransferLegs(address string) ([]models.TransferLeg, error)
	ListDenomDefinitions() ([]settlement.DenomDefinition, error)
}

type AuthDB interface {
	GetUserAuthData(username string) (int, string, error)
}

func Connect(cfg *config.Config) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseUser,
		cfg.DatabasePassword,
		cfg.DatabaseName,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}
