package billing

import (
	"context"
	"errors"
)

// ErrItemNotFound is returned by a Catalog for unknown item ids
var ErrItemNotFound = errors.New("store item not found")

// CatalogItem is the authoritative listing of a store item.
type CatalogItem struct {
	ID        string
	Name      string
	Price     float64
	SalePrice *float64
}

// Catalog resolves store items by id. It is backed by the storefront's
// relational schema.
type Catalog interface {
	LookupItem(ctx context.Context, id string) (*CatalogItem, error)
}

// ApplyCatalog overwrites the name and prices of item with the catalog listing.
func ApplyCatalog(item CartItem, listing *CatalogItem) CartItem {
	if listing == nil {
		return item
	}
	if listing.Name != "" {
		item.Name = listing.Name
	}
	item.Price = listing.Price
	item.SalePrice = listing.SalePrice
	return item
}
