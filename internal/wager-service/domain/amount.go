package domain

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL é a quantidade de lamports em uma unidade inteira da moeda nativa
const LamportsPerSOL = 1_000_000_000

// maxLamports cabe em BIGINT, que é como o ledger guarda os valores
var maxLamports = decimal.NewFromInt(math.MaxInt64)

// ToLamports converte um valor em SOL para lamports.
// Rejeita valores <= 0 e frações menores que 1 lamport.
func ToLamports(sol decimal.Decimal) (uint64, error) {
	if !sol.IsPositive() {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	l := sol.Shift(9)
	if !l.IsInteger() {
		return 0, fmt.Errorf("%w: precision below one lamport", ErrInvalidAmount)
	}
	if l.GreaterThan(maxLamports) {
		return 0, fmt.Errorf("%w: too large", ErrInvalidAmount)
	}
	return l.BigInt().Uint64(), nil
}

// FormatSOL formata lamports como SOL decimal sem zeros à direita (ex: 1500000000 -> "1.5")
func FormatSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9).String()
}

// WithinTolerance compara dois valores em lamports com tolerância absoluta
func WithinTolerance(got, want, tolerance uint64) bool {
	if got > want {
		return got-want <= tolerance
	}
	return want-got <= tolerance
}
