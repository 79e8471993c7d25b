package service

import (
	"errors"
	"testing"

	"token-ledger/internal/db"
	"token-ledger/internal/settlement"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, fields ...zap.Field)  {}
func (m *mockLogger) Warn(msg string, fields ...zap.Field)  {}
func (m *mockLogger) Error(msg string, fields ...zap.Field) {}
func (m *mockLogger) Sync() error                           { return nil }

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestSubmitMultiSend_Success(t *testing.T) {
	dbConn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Error initializing sqlmock: %v", err)
	}
	defer dbConn.Close()

	// account1 sends 1000 denom1 to recipient; 8% burn and 12% commission
	// produce -1200 / +120 (issuer) / +1000 deltas.
	mock.ExpectQuery(`SELECT denom, issuer, burn_rate, commission_rate\s+FROM denoms\s+WHERE denom = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"denom1"})).
		WillReturnRows(sqlmock.NewRows([]string{"denom", "issuer", "burn_rate", "commission_rate"}).
			AddRow("denom1", "issuer_A", "0.08", "0.12"))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT address, denom, amount\s+FROM balances\s+WHERE address = ANY\(\$1\)\s+ORDER BY address, denom\s+FOR UPDATE`).
		WithArgs(pq.Array([]string{"account1", "issuer_A", "recipient"})).
		WillReturnRows(sqlmock.NewRows([]string{"address", "denom", "amount"}).
			AddRow("account1", "denom1", "1000000"))
	mock.ExpectQuery(`INSERT INTO transfers DEFAULT VALUES RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	mock.ExpectExec(`INSERT INTO balances \(address, denom, amount\) VALUES \(\$1, \$2, \$3\)\s+ON CONFLICT \(address, denom\) DO UPDATE SET amount = balances\.amount \+ EXCLUDED\.amount`).
		WithArgs("account1", "denom1", amount(-1200)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transfer_legs \(transfer_id, address, denom, amount\) VALUES \(\$1, \$2, \$3, \$4\)`).
		WithArgs(7, "account1", "denom1", amount(-1200)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec(`INSERT INTO balances`).
		WithArgs("issuer_A", "denom1", amount(120)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transfer_legs`).
		WithArgs(7, "issuer_A", "denom1", amount(120)).
		WillReturnResult(sqlmock.NewResult(2, 1))

	mock.ExpectExec(`INSERT INTO balances`).
		WithArgs("recipient", "denom1", amount(1000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transfer_legs`).
		WithArgs(7, "recipient", "denom1", amount(1000)).
		WillReturnResult(sqlmock.NewResult(3, 1))

	mock.ExpectCommit()

	svc := NewLedgerService(db.NewLedgerDB(dbConn), &mockLogger{})
	changes, err := svc.SubmitMultiSend(settlement.MultiSend{
		Inputs: []settlement.Balance{
			{Address: "account1", Coins: []settlement.Coin{{Denom: "denom1", Amount: amount(1000)}}},
		},
		Outputs: []settlement.Balance{
			{Address: "recipient", Coins: []settlement.Coin{{Denom: "denom1", Amount: amount(1000)}}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 3 {
		t.Errorf("expected 3 balance changes, got %d: %+v", len(changes), changes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestSubmitMultiSend_InsufficientBalanceRollsBack(t *testing.T) {
	dbConn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Error initializing sqlmock: %v", err)
	}
	defer dbConn.Close()

	mock.ExpectQuery(`SELECT denom, issuer, burn_rate, commission_rate`).
		WithArgs(pq.Array([]string{"denom1"})).
		WillReturnRows(sqlmock.NewRows([]string{"denom", "issuer", "burn_rate", "commission_rate"}).
			AddRow("denom1", "issuer_A", "0", "0"))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT address, denom, amount`).
		WithArgs(pq.Array([]string{"account1", "issuer_A", "recipient"})).
		WillReturnRows(sqlmock.NewRows([]string{"address", "denom", "amount"}).
			AddRow("account1", "denom1", "100"))
	mock.ExpectRollback()

	svc := NewLedgerService(db.NewLedgerDB(dbConn), &mockLogger{})
	changes, err := svc.SubmitMultiSend(settlement.MultiSend{
		Inputs: []settlement.Balance{
			{Address: "account1", Coins: []settlement.Coin{{Denom: "denom1", Amount: amount(350)}}},
		},
		Outputs: []settlement.Balance{
			{Address: "recipient", Coins: []settlement.Coin{{Denom: "denom1", Amount: amount(350)}}},
		},
	})
	if !errors.Is(err, settlement.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if changes != nil {
		t.Errorf("expected no changes on rejection, got %+v", changes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestSubmitMultiSend_UnbalancedRollsBack(t *testing.T) {
	dbConn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Error initializing sqlmock: %v", err)
	}
	defer dbConn.Close()

	mock.ExpectQuery(`SELECT denom, issuer, burn_rate, commission_rate`).
		WithArgs(pq.Array([]string{"denom1"})).
		WillReturnRows(sqlmock.NewRows([]string{"denom", "issuer", "burn_rate", "commission_rate"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT address, denom, amount`).
		WithArgs(pq.Array([]string{"account1", "recipient"})).
		WillReturnRows(sqlmock.NewRows([]string{"address", "denom", "amount"}).
			AddRow("account1", "denom1", "1000000"))
	mock.ExpectRollback()

	svc := NewLedgerService(db.NewLedgerDB(dbConn), &mockLogger{})
	_, err = svc.SubmitMultiSend(settlement.MultiSend{
		Inputs: []settlement.Balance{
			{Address: "account1", Coins: []settlement.Coin{{Denom: "denom1", Amount: amount(350)}}},
		},
		Outputs: []settlement.Balance{
			{Address: "recipient", Coins: []settlement.Coin{{Denom: "denom1", Amount: amount(450)}}},
		},
	})
	if !errors.Is(err, settlement.ErrUnbalancedTransaction) {
		t.Fatalf("expected ErrUnbalancedTransaction, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestGetBalance(t *testing.T) {
	dbConn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Error initializing sqlmock: %v", err)
	}
	defer dbConn.Close()

	mock.ExpectQuery(`SELECT denom, amount FROM balances WHERE address=\$1 ORDER BY denom`).
		WithArgs("account1").
		WillReturnRows(sqlmock.NewRows([]string{"denom", "amount"}).
			AddRow("denom1", "500").
			AddRow("denom2", "40"))

	svc := NewLedgerService(db.NewLedgerDB(dbConn), &mockLogger{})
	balance, err := svc.GetBalance("account1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.Address != "account1" || len(balance.Coins) != 2 {
		t.Errorf("unexpected balance: %+v", balance)
	}
	if !balance.Coins[0].Amount.Equal(amount(500)) {
		t.Errorf("expected denom1 amount 500, got %s", balance.Coins[0].Amount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}
