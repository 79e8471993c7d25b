package service

import (
	"fmt"
	"sort"

	"token-ledger/internal/db"
	"token-ledger/internal/models"
	"token-ledger/internal/settlement"
	"token-ledger/pkg"

	"go.uber.org/zap"
)

type LedgerService interface {
	// SubmitMultiSend settles the instruction against current balances and
	// applies the resulting deltas atomically. On rejection nothing is
	// persisted.
	SubmitMultiSend(tx settlement.MultiSend) ([]settlement.Balance, error)

	GetBalance(address string) (settlement.Balance, error)

	GetTransferHistory(address string) ([]models.TransferLeg, error)

	ListDenoms() ([]settlement.DenomDefinition, error)
}

type ledgerService struct {
	dbProv db.LedgerDB
	log    pkg.Logger
}

func NewLedgerService(dbProv db.LedgerDB, log pkg.Logger) LedgerService {
	return &ledgerService{
		dbProv: dbProv,
		log:    log,
	}
}

func (s *ledgerService) SubmitMultiSend(multiSend settlement.MultiSend) ([]settlement.Balance, error) {
	definitions, err := s.dbProv.GetDenomDefinitions(instructionDenoms(multiSend))
	if err != nil {
		s.log.Error("failed to load denom definitions", zap.Error(err))
		return nil, err
	}

	tx, err := s.dbProv.BeginTx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Issuers are locked along with senders and receivers since commission
	// credits may touch their rows.
	addresses := instructionAddresses(multiSend, definitions)
	balances, err := s.dbProv.GetBalancesForUpdate(tx, addresses)
	if err != nil {
		s.log.Error("failed to load balances", zap.Error(err))
		return nil, err
	}

	changes, err := settlement.CalculateBalanceChanges(balances, definitions, multiSend)
	if err != nil {
		s.log.Warn("multi-send rejected", zap.Error(err))
		return nil, err
	}

	transferID, err := s.dbProv.InsertTransfer(tx)
	if err != nil {
		s.log.Error("failed to insert transfer", zap.Error(err))
		return nil, err
	}
	for _, change := range changes {
		for _, coin := range change.Coins {
			if err := s.dbProv.ApplyChange(tx, change.Address, coin.Denom, coin.Amount); err != nil {
				s.log.Error("failed to apply balance change",
					zap.String("address", change.Address), zap.String("denom", coin.Denom), zap.Error(err))
				return nil, err
			}
			if err := s.dbProv.InsertTransferLeg(tx, transferID, change.Address, coin.Denom, coin.Amount); err != nil {
				s.log.Error("failed to insert transfer leg",
					zap.String("address", change.Address), zap.String("denom", coin.Denom), zap.Error(err))
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		s.log.Error("failed to commit multi-send", zap.Error(err))
		return nil, err
	}
	s.log.Info("Multi-send settled",
		zap.Int("transferID", transferID),
		zap.Int("inputs", len(multiSend.Inputs)),
		zap.Int("outputs", len(multiSend.Outputs)),
		zap.Int("changedAccounts", len(changes)))
	return changes, nil
}

func (s *ledgerService) GetBalance(address string) (settlement.Balance, error) {
	coins, err := s.dbProv.GetBalance(address)
	if err != nil {
		s.log.Error("failed to get balance", zap.String("address", address), zap.Error(err))
		return settlement.Balance{}, err
	}
	return settlement.Balance{Address: address, Coins: coins}, nil
}

func (s *ledgerService) GetTransferHistory(address string) ([]models.TransferLeg, error) {
	legs, err := s.dbProv.GetTransferLegs(address)
	if err != nil {
		s.log.Error("failed to get transfer history", zap.String("address", address), zap.Error(err))
		return nil, err
	}
	return legs, nil
}

func (s *ledgerService) ListDenoms() ([]settlement.DenomDefinition, error) {
	defs, err := s.dbProv.ListDenomDefinitions()
	if err != nil {
		s.log.Error("failed to list denoms", zap.Error(err))
		return nil, err
	}
	return defs, nil
}

func instructionDenoms(multiSend settlement.MultiSend) []string {
	seen := make(map[string]struct{})
	for _, legs := range [][]settlement.Balance{multiSend.Inputs, multiSend.Outputs} {
		for _, leg := range legs {
			for _, coin := range leg.Coins {
				seen[coin.Denom] = struct{}{}
			}
		}
	}
	denoms := make([]string, 0, len(seen))
	for denom := range seen {
		denoms = append(denoms, denom)
	}
	sort.Strings(denoms)
	return denoms
}

// instructionAddresses collects senders, receivers and issuers, sorted so
// that concurrent submissions acquire row locks in the same order.
func instructionAddresses(multiSend settlement.MultiSend, definitions []settlement.DenomDefinition) []string {
	seen := make(map[string]struct{})
	for _, legs := range [][]settlement.Balance{multiSend.Inputs, multiSend.Outputs} {
		for _, leg := range legs {
			seen[leg.Address] = struct{}{}
		}
	}
	for _, def := range definitions {
		seen[def.Issuer] = struct{}{}
	}
	addresses := make([]string, 0, len(seen))
	for address := range seen {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}
