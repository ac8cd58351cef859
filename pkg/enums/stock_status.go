package enums

// StockStatus is the derived availability label stored on a stock item.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// StockStatusFor derives the label from available units and the low-stock threshold.
func StockStatusFor(available, threshold int) StockStatus {
	switch {
	case available <= 0:
		return StockStatusOutOfStock
	case available <= threshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

func (s StockStatus) String() string {
	return string(s)
}
