// Package settlement computes the net balance changes produced by a
// multi-send transfer: several input accounts debited, several output
// accounts credited, with per-denom burn and commission fees charged to
// non-issuer senders in proportion to their contribution.
//
// The computation is pure: it reads a balance snapshot and a set of denom
// definitions, and either returns the list of per-address deltas or rejects
// the whole transaction. It keeps no state between calls and is safe to
// invoke concurrently.
package settlement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Coin is an amount of a single denom. Amounts are arbitrary-precision;
// within one Balance denoms are unique.
type Coin struct {
	Denom  string
	Amount decimal.Decimal
}

// Balance is a set of coins held by (or a set of deltas applied to) one
// address. Negative amounts in a result mean deduction.
type Balance struct {
	Address string
	Coins   []Coin
}

// DenomDefinition describes a denom: who issued it and which fraction of a
// non-issuer transfer is burnt or redirected to the issuer as commission.
// Rates are fractions in [0, 1].
type DenomDefinition struct {
	Denom          string
	Issuer         string
	BurnRate       decimal.Decimal
	CommissionRate decimal.Decimal
}

// MultiSend is one transfer instruction: inputs are debits, outputs are
// credits. Input and output sums must match for every denom independently.
type MultiSend struct {
	Inputs  []Balance
	Outputs []Balance
}

var (
	ErrUnbalancedTransaction = errors.New("unbalanced transaction")
	ErrInsufficientBalance   = errors.New("insufficient balance")
)

// Validate checks that inputs and outputs sum to the same amount for every
// denom. Summing across denoms into one scalar would wrongly accept a swap
// of unequal amounts of two denoms, so the check is per denom.
func (tx MultiSend) Validate() error {
	inputSums := sumByDenom(tx.Inputs)
	outputSums := sumByDenom(tx.Outputs)

	denoms := make(map[string]struct{}, len(inputSums)+len(outputSums))
	for denom := range inputSums {
		denoms[denom] = struct{}{}
	}
	for denom := range outputSums {
		denoms[denom] = struct{}{}
	}
	for _, denom := range sortedKeys(denoms) {
		in, out := inputSums[denom], outputSums[denom]
		if !in.Equal(out) {
			return fmt.Errorf("denom %s: input sum %s does not match output sum %s: %w",
				denom, in, out, ErrUnbalancedTransaction)
		}
	}
	return nil
}

// CalculateBalanceChanges computes the signed per-address, per-denom deltas
// that applying tx to originalBalances would produce, or rejects the whole
// transaction. No partial result is ever returned.
//
// For every denom with a definition, senders other than the issuer pay a
// burn share and a commission share on top of the transferred amount. Both
// shares derive from the same per-denom base,
// min(nonIssuerInputSum, nonIssuerOutputSum), apportioned by each sender's
// fraction of nonIssuerInputSum and rounded up to a whole unit. Burn shares
// leave the system; commission shares are credited to the issuer. A denom
// with no definition transfers fee-free.
func CalculateBalanceChanges(originalBalances []Balance, definitions []DenomDefinition, tx MultiSend) ([]Balance, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	balances := indexBalances(originalBalances)
	defs := make(map[string]DenomDefinition, len(definitions))
	for _, def := range definitions {
		defs[def.Denom] = def
	}

	nonIssuerInputSums := nonIssuerSums(tx.Inputs, defs)
	nonIssuerOutputSums := nonIssuerSums(tx.Outputs, defs)

	changes := make(accumulator)

	for _, input := range tx.Inputs {
		for _, coin := range input.Coins {
			def, hasDef := defs[coin.Denom]

			var burn, commission decimal.Decimal
			if hasDef && input.Address != def.Issuer {
				inputSum := nonIssuerInputSums[coin.Denom]
				base := decimal.Min(inputSum, nonIssuerOutputSums[coin.Denom])
				burn = feeShare(base, def.BurnRate, coin.Amount, inputSum)
				commission = feeShare(base, def.CommissionRate, coin.Amount, inputSum)
			}

			required := coin.Amount.Add(burn).Add(commission)
			if balances[input.Address][coin.Denom].LessThan(required) {
				return nil, fmt.Errorf("account %s needs %s %s: %w",
					input.Address, required, coin.Denom, ErrInsufficientBalance)
			}

			changes.add(input.Address, coin.Denom, required.Neg())
			if commission.IsPositive() {
				changes.add(def.Issuer, coin.Denom, commission)
			}
		}
	}

	for _, output := range tx.Outputs {
		for _, coin := range output.Coins {
			changes.add(output.Address, coin.Denom, coin.Amount)
		}
	}

	return changes.collect(), nil
}

// feeShare is roundup(base * rate * amount / nonIssuerInputSum). The
// quotient is taken exactly and any positive remainder rounds the share up
// one whole unit, so fees are never under-collected by truncation.
func feeShare(base, rate, amount, nonIssuerInputSum decimal.Decimal) decimal.Decimal {
	if base.IsZero() || rate.IsZero() || amount.IsZero() || nonIssuerInputSum.IsZero() {
		return decimal.Zero
	}
	quo, rem := base.Mul(rate).Mul(amount).QuoRem(nonIssuerInputSum, 0)
	if !rem.IsZero() {
		quo = quo.Add(decimal.New(1, 0))
	}
	return quo
}

func sumByDenom(legs []Balance) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, leg := range legs {
		for _, coin := range leg.Coins {
			sums[coin.Denom] = sums[coin.Denom].Add(coin.Amount)
		}
	}
	return sums
}

// nonIssuerSums totals the amounts per denom, skipping legs held by the
// denom's issuer and denoms without a definition.
func nonIssuerSums(legs []Balance, defs map[string]DenomDefinition) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, leg := range legs {
		for _, coin := range leg.Coins {
			def, ok := defs[coin.Denom]
			if !ok || leg.Address == def.Issuer {
				continue
			}
			sums[coin.Denom] = sums[coin.Denom].Add(coin.Amount)
		}
	}
	return sums
}

func indexBalances(balances []Balance) map[string]map[string]decimal.Decimal {
	index := make(map[string]map[string]decimal.Decimal, len(balances))
	for _, balance := range balances {
		coins, ok := index[balance.Address]
		if !ok {
			coins = make(map[string]decimal.Decimal, len(balance.Coins))
			index[balance.Address] = coins
		}
		for _, coin := range balance.Coins {
			coins[coin.Denom] = coins[coin.Denom].Add(coin.Amount)
		}
	}
	return index
}

// accumulator gathers deltas per (address, denom) for one invocation.
type accumulator map[string]map[string]decimal.Decimal

func (a accumulator) add(address, denom string, delta decimal.Decimal) {
	coins, ok := a[address]
	if !ok {
		coins = make(map[string]decimal.Decimal)
		a[address] = coins
	}
	coins[denom] = coins[denom].Add(delta)
}

// collect flattens the accumulator into balances sorted by address and
// denom. Zero deltas are dropped; an address whose deltas all cancel out is
// omitted entirely.
func (a accumulator) collect() []Balance {
	result := make([]Balance, 0, len(a))
	for _, address := range sortedKeys(a) {
		coins := make([]Coin, 0, len(a[address]))
		for _, denom := range sortedKeys(a[address]) {
			amount := a[address][denom]
			if amount.IsZero() {
				continue
			}
			coins = append(coins, Coin{Denom: denom, Amount: amount})
		}
		if len(coins) == 0 {
			continue
		}
		result = append(result, Balance{Address: address, Coins: coins})
	}
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
