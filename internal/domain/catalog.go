package domain

// Product — запись каталога. Каталог принадлежит другому модулю, здесь он только читается.
type Product struct {
	ID         string
	VendorID   string
	Name       string
	PriceMinor int64
	Active     bool
	// TrackStock включает проверку остатка; без него остаток считается бесконечным.
	TrackStock bool
	Stock      int32
}

// Vendor продаёт товары на маркетплейсе.
type Vendor struct {
	ID     string
	Name   string
	Active bool
}
