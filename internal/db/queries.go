package db

import (
	"database/sql"
	"fmt"

	"token-ledger/internal/models"
	"token-ledger/internal/settlement"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type ledgerDBImplementation struct {
	db *sql.DB
}

func NewLedgerDB(dbConn *sql.DB) LedgerDB {
	return &ledgerDBImplementation{
		db: dbConn,
	}
}

type authDBImplementation struct {
	db *sql.DB
}

func NewAuthDB(dbConn *sql.DB) AuthDB {
	return &authDBImplementation{
		db: dbConn,
	}
}

func (a *authDBImplementation) GetUserAuthData(username string) (int, string, error) {
	var (
		id           int
		passwordHash string
	)
	err := a.db.QueryRow("SELECT id, password_hash FROM users WHERE username=$1", username).
		Scan(&id, &passwordHash)
	if err != nil {
		return 0, "", fmt.Errorf("failed to get user auth data for '%s': %w", username, err)
	}
	return id, passwordHash, nil
}

func (l *ledgerDBImplementation) BeginTx() (*sql.Tx, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

func (l *ledgerDBImplementation) GetBalancesForUpdate(tx *sql.Tx, addresses []string) ([]settlement.Balance, error) {
	rows, err := tx.Query(`
        SELECT address, denom, amount
        FROM balances
        WHERE address = ANY($1)
        ORDER BY address, denom
        FOR UPDATE
    `, pq.Array(addresses))
	if err != nil {
		return nil, fmt.Errorf("failed to lock balances: %w", err)
	}
	defer rows.Close()

	var balances []settlement.Balance
	for rows.Next() {
		var (
			address string
			coin    settlement.Coin
		)
		if err := rows.Scan(&address, &coin.Denom, &coin.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}
		if len(balances) > 0 && balances[len(balances)-1].Address == address {
			last := &balances[len(balances)-1]
			last.Coins = append(last.Coins, coin)
			continue
		}
		balances = append(balances, settlement.Balance{Address: address, Coins: []settlement.Coin{coin}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read balances: %w", err)
	}
	return balances, nil
}

func (l *ledgerDBImplementation) GetDenomDefinitions(denoms []string) ([]settlement.DenomDefinition, error) {
	rows, err := l.db.Query(`
        SELECT denom, issuer, burn_rate, commission_rate
        FROM denoms
        WHERE denom = ANY($1)
    `, pq.Array(denoms))
	if err != nil {
		return nil, fmt.Errorf("failed to query denom definitions: %w", err)
	}
	defer rows.Close()

	return scanDefinitions(rows)
}

func (l *ledgerDBImplementation) ListDenomDefinitions() ([]settlement.DenomDefinition, error) {
	rows, err := l.db.Query("SELECT denom, issuer, burn_rate, commission_rate FROM denoms ORDER BY denom")
	if err != nil {
		return nil, fmt.Errorf("failed to list denom definitions: %w", err)
	}
	defer rows.Close()

	return scanDefinitions(rows)
}

func scanDefinitions(rows *sql.Rows) ([]settlement.DenomDefinition, error) {
	var defs []settlement.DenomDefinition
	for rows.Next() {
		var def settlement.DenomDefinition
		if err := rows.Scan(&def.Denom, &def.Issuer, &def.BurnRate, &def.CommissionRate); err != nil {
			return nil, fmt.Errorf("failed to scan denom definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read denom definitions: %w", err)
	}
	return defs, nil
}

func (l *ledgerDBImplementation) ApplyChange(tx *sql.Tx, address, denom string, delta decimal.Decimal) error {
	_, err := tx.Exec(`
        INSERT INTO balances (address, denom, amount) VALUES ($1, $2, $3)
        ON CONFLICT (address, denom) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
    `, address, denom, delta)
	if err != nil {
		return fmt.Errorf("failed to apply balance change for %s/%s: %w", address, denom, err)
	}
	return nil
}

func (l *ledgerDBImplementation) InsertTransfer(tx *sql.Tx) (int, error) {
	var id int
	err := tx.QueryRow("INSERT INTO transfers DEFAULT VALUES RETURNING id").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transfer: %w", err)
	}
	return id, nil
}

func (l *ledgerDBImplementation) InsertTransferLeg(tx *sql.Tx, transferID int, address, denom string, amount decimal.Decimal) error {
	_, err := tx.Exec(`
        INSERT INTO transfer_legs (transfer_id, address, denom, amount) VALUES ($1, $2, $3, $4)
    `, transferID, address, denom, amount)
	if err != nil {
		return fmt.Errorf("failed to insert transfer leg: %w", err)
	}
	return nil
}

func (l *ledgerDBImplementation) GetBalance(address string) ([]settlement.Coin, error) {
	rows, err := l.db.Query("SELECT denom, amount FROM balances WHERE address=$1 ORDER BY denom", address)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance for %s: %w", address, err)
	}
	defer rows.Close()

	var coins []settlement.Coin
	for rows.Next() {
		var coin settlement.Coin
		if err := rows.Scan(&coin.Denom, &coin.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan coin: %w", err)
		}
		coins = append(coins, coin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read balance for %s: %w", address, err)
	}
	return coins, nil
}

func (l *ledgerDBImplementation) GetTransferLegs(address string) ([]models.TransferLeg, error) {
	rows, err := l.db.Query(`
        SELECT id, transfer_id, address, denom, amount, created_at
        FROM transfer_legs
        WHERE address=$1
        ORDER BY id
    `, address)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer legs for %s: %w", address, err)
	}
	defer rows.Close()

	var legs []models.TransferLeg
	for rows.Next() {
		var leg models.TransferLeg
		if err := rows.Scan(&leg.ID, &leg.TransferID, &leg.Address, &leg.Denom, &leg.Amount, &leg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer leg: %w", err)
		}
		legs = append(legs, leg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transfer legs for %s: %w", address, err)
	}
	return legs, nil
}
