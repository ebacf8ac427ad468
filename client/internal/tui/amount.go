package tui

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// lamportsDecimals - 1 SOL = 10^9 лампортов.
const lamportsDecimals = 9

var (
	errAmountFormat    = errors.New("введите число, например 0.01")
	errAmountPositive  = errors.New("сумма должна быть больше нуля")
	errAmountPrecision = errors.New("не больше 9 знаков после запятой")
	errAmountTooLarge  = errors.New("слишком большая сумма")
)

var maxLamports = decimal.NewFromInt(math.MaxInt64)

// parseSOL переводит сумму в SOL (допускается запятая) в лампорты.
func parseSOL(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, errAmountFormat
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errAmountFormat
	}
	lamports := d.Shift(lamportsDecimals)
	if !lamports.IsInteger() {
		return 0, errAmountPrecision
	}
	if !lamports.IsPositive() {
		return 0, errAmountPositive
	}
	if lamports.GreaterThan(maxLamports) {
		return 0, errAmountTooLarge
	}
	return lamports.IntPart(), nil
}

// formatSOL отображает лампорты в SOL без лишних нулей.
func formatSOL(lamports int64) string {
	return decimal.New(lamports, -lamportsDecimals).String() + " SOL"
}

// formatDelta отображает изменение баланса со знаком.
func formatDelta(lamports int64) string {
	if lamports > 0 {
		return "+" + formatSOL(lamports)
	}
	return formatSOL(lamports)
}
