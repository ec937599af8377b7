package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxRatePercent применяется к подытогу.
const TaxRatePercent = 6

// MinorUnitsExponent — число знаков после запятой у денежной единицы (сены).
const MinorUnitsExponent = 2

// MaxUnitPriceMinor ограничивает цену за единицу (100 000 000.00).
// Вместе с MaxItemQuantity и MaxLineItems это держит итог любого набора
// позиций, включая налог, в пределах int64.
const MaxUnitPriceMinor = int64(10_000_000_000)

// MaxLineItems ограничивает число позиций в корзине или котировке.
const MaxLineItems = 1000

var taxRate = decimal.New(TaxRatePercent, -2)

// PriceLine: цена за единицу в минимальных единицах и количество.
type PriceLine struct {
	UnitPriceMinor int64
	Quantity       int32
}

// Totals хранит подытог, налог и итог в минимальных единицах.
type Totals struct {
	SubtotalMinor int64
	TaxMinor      int64
	TotalMinor    int64
}

// CalculateTotals считает подытог, налог и итог. Функция чистая:
// количества, цены и число позиций ограничиваются раньше, на входе сервисов
// (см. ValidatePriceLine).
func CalculateTotals(lines []PriceLine) Totals {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.UnitPriceMinor * int64(line.Quantity)
	}
	tax := TaxFor(subtotal)
	return Totals{
		SubtotalMinor: subtotal,
		TaxMinor:      tax,
		TotalMinor:    subtotal + tax,
	}
}

// ValidatePriceLine проверяет, что позиция укладывается в денежные пределы.
func ValidatePriceLine(line PriceLine) error {
	if line.Quantity < 1 || line.Quantity > MaxItemQuantity {
		return Validationf("quantity must be between 1 and %d", MaxItemQuantity)
	}
	if line.UnitPriceMinor < 0 || line.UnitPriceMinor > MaxUnitPriceMinor {
		return Validationf("unit price must be between 0 and %s", FormatMinor(MaxUnitPriceMinor))
	}
	return nil
}

// TaxFor возвращает налог с подытога, округлённый до сена (half away from zero).
func TaxFor(subtotalMinor int64) int64 {
	return decimal.NewFromInt(subtotalMinor).Mul(taxRate).Round(0).IntPart()
}

// Add складывает два расчёта.
func (t Totals) Add(other Totals) Totals {
	return Totals{
		SubtotalMinor: t.SubtotalMinor + other.SubtotalMinor,
		TaxMinor:      t.TaxMinor + other.TaxMinor,
		TotalMinor:    t.TotalMinor + other.TotalMinor,
	}
}

// FormatMinor печатает сумму в минимальных единицах как десятичную строку "212.00".
func FormatMinor(amountMinor int64) string {
	return decimal.New(amountMinor, -MinorUnitsExponent).StringFixed(MinorUnitsExponent)
}

// ParseAmount разбирает десятичную строку "100.50" в минимальные единицы.
// Больше двух знаков после запятой и отрицательные суммы отклоняются.
func ParseAmount(raw string) (int64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, Validationf("amount %q is not a decimal number", raw)
	}
	if d.IsNegative() {
		return 0, Validationf("amount %q must be non-negative", raw)
	}
	scaled := d.Shift(MinorUnitsExponent)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, Validationf("amount %q has more than %d decimal places", raw, MinorUnitsExponent)
	}
	if scaled.GreaterThan(decimal.NewFromInt(MaxUnitPriceMinor)) {
		return 0, Validationf("amount %q exceeds %s", raw, FormatMinor(MaxUnitPriceMinor))
	}
	return scaled.IntPart(), nil
}

// MustParseAmount паникует на ошибке. Только для констант в тестах и демо-данных.
func MustParseAmount(raw string) int64 {
	v, err := ParseAmount(raw)
	if err != nil {
		panic(fmt.Sprintf("parse amount %q: %v", raw, err))
	}
	return v
}
