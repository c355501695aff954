package estimates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrInvalidPrice    = errors.New("unit price must not be negative")
	ErrMinimumItems    = errors.New("estimate must keep at least one line item")
	ErrItemIndex       = errors.New("line item index out of range")
	ErrCatalogNotFound = errors.New("catalog entry not found")
)

// MaterialRecord is the reference data a catalog lookup returns for one
// material.
type MaterialRecord struct {
	Name      string
	Unit      string
	Category  string
	UnitPrice decimal.Decimal
}

// Catalog resolves material reference data for line items. Implementations
// return ErrCatalogNotFound when the material id is unknown.
type Catalog interface {
	Lookup(ctx context.Context, materialID uuid.UUID) (MaterialRecord, error)
}

// ItemList holds the ordered line items of one estimate draft and keeps each
// item's TotalPrice derived from its quantity and unit price. Mutations only
// touch the list itself; the caller recomputes the estimate totals afterward,
// so batched edits recompute exactly once.
type ItemList struct {
	catalog Catalog
	items   []LineItem
}

// NewItemList wraps existing items, normalising every TotalPrice. An empty
// list receives one blank item so the minimum-items rule holds from the
// start.
func NewItemList(catalog Catalog, items []LineItem) *ItemList {
	l := &ItemList{catalog: catalog}
	for _, item := range items {
		item.TotalPrice = LineTotal(item.Quantity, item.UnitPrice)
		l.items = append(l.items, item)
	}
	if len(l.items) == 0 {
		l.items = append(l.items, blankItem())
	}
	l.renumber()
	return l
}

func blankItem() LineItem {
	return LineItem{
		Quantity:   decimal.Zero,
		UnitPrice:  decimal.Zero,
		TotalPrice: decimal.Zero,
	}
}

func (l *ItemList) renumber() {
	for i := range l.items {
		l.items[i].SortOrder = i + 1
	}
}

// Len returns the number of line items.
func (l *ItemList) Len() int {
	return len(l.items)
}

// Items returns a copy of the current line items in order.
func (l *ItemList) Items() []LineItem {
	out := make([]LineItem, len(l.items))
	copy(out, l.items)
	return out
}

func (l *ItemList) checkIndex(index int) error {
	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("%w: %d", ErrItemIndex, index)
	}
	return nil
}

// Append adds an item to the end of the list, deriving its total price.
func (l *ItemList) Append(item LineItem) {
	item.TotalPrice = LineTotal(item.Quantity, item.UnitPrice)
	l.items = append(l.items, item)
	l.renumber()
}

// Remove deletes the item at index. Removing the last remaining item is
// rejected so the list never becomes empty.
func (l *ItemList) Remove(index int) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	if len(l.items) == 1 {
		return ErrMinimumItems
	}
	l.items = append(l.items[:index], l.items[index+1:]...)
	l.renumber()
	return nil
}

// SetQuantity updates the quantity of the item at index and re-derives its
// total price. Negative quantities are rejected and leave the item unchanged.
func (l *ItemList) SetQuantity(index int, quantity decimal.Decimal) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	if quantity.IsNegative() {
		return ErrInvalidQuantity
	}
	item := &l.items[index]
	item.Quantity = quantity
	item.TotalPrice = LineTotal(item.Quantity, item.UnitPrice)
	return nil
}

// SetUnitPrice updates the unit price of the item at index and re-derives its
// total price. Negative prices are rejected and leave the item unchanged.
func (l *ItemList) SetUnitPrice(index int, price decimal.Decimal) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	if price.IsNegative() {
		return ErrInvalidPrice
	}
	item := &l.items[index]
	item.UnitPrice = price
	item.TotalPrice = LineTotal(item.Quantity, item.UnitPrice)
	return nil
}

// SetCatalogRef points the item at index at a catalog material. On success
// the material's name, unit, category and unit price overwrite the item's
// manual values and the total price is re-derived from the current quantity.
// When the lookup fails the item keeps its previous values.
func (l *ItemList) SetCatalogRef(ctx context.Context, index int, materialID uuid.UUID) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	if l.catalog == nil {
		return ErrCatalogNotFound
	}
	record, err := l.catalog.Lookup(ctx, materialID)
	if err != nil {
		return err
	}
	item := &l.items[index]
	item.CatalogRef = &materialID
	item.Name = record.Name
	item.Unit = record.Unit
	item.Category = record.Category
	item.UnitPrice = record.UnitPrice
	item.TotalPrice = LineTotal(item.Quantity, item.UnitPrice)
	return nil
}
