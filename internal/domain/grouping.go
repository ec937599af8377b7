package domain

// LineItem — позиция, готовая к оформлению: позиция корзины или котировки
// вместе с поставщиком, к которому она относится.
type LineItem struct {
	ItemID         string
	ProductID      string
	VendorID       string
	Name           string
	UnitPriceMinor int64
	Quantity       int32
}

// LineTotalMinor возвращает стоимость позиции без налога.
func (l LineItem) LineTotalMinor() int64 {
	return l.UnitPriceMinor * int64(l.Quantity)
}

// VendorGroup хранит позиции одного поставщика и их расчёт.
type VendorGroup struct {
	VendorID string
	Items    []LineItem
	Totals   Totals
}

// GroupByVendor разбивает позиции по поставщику. Группы идут в порядке первого
// появления поставщика, позиции внутри группы сохраняют исходный порядок.
// Позиции без поставщика возвращаются отдельно и в группы не попадают.
//
// Это единственная функция группировки: её используют и сводка корзины,
// и оформление заказа.
func GroupByVendor(items []LineItem) (groups []VendorGroup, unresolved []LineItem) {
	index := make(map[string]int)
	for _, item := range items {
		if item.VendorID == "" {
			unresolved = append(unresolved, item)
			continue
		}
		pos, ok := index[item.VendorID]
		if !ok {
			pos = len(groups)
			index[item.VendorID] = pos
			groups = append(groups, VendorGroup{VendorID: item.VendorID})
		}
		groups[pos].Items = append(groups[pos].Items, item)
	}

	for i := range groups {
		groups[i].Totals = CalculateTotals(PriceLines(groups[i].Items))
	}
	return groups, unresolved
}

// PriceLines проецирует позиции в вход калькулятора.
func PriceLines(items []LineItem) []PriceLine {
	lines := make([]PriceLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, PriceLine{UnitPriceMinor: item.UnitPriceMinor, Quantity: item.Quantity})
	}
	return lines
}
