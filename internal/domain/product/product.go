package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Status badges shown on product cards.
const (
	StatusNew      = "New in"
	StatusDiscount = "50% Discount"
)

// Record is a product as served by the backend catalog. Numeric fields are
// kept as their JSON text so that conversion errors surface from Adapt.
type Record struct {
	ID               string
	Name             string
	Price            string
	Images           []string
	ShortDescription string
	Category         []string
	Tag              []string
	Variation        []Variation
	New              bool
	Discount         string
	OfferEnd         *time.Time
}

// Variation is one color option of a product with its sizes.
type Variation struct {
	Color string
	Size  []Size
}

// Size is a size option with its stock level.
type Size struct {
	Name  string
	Stock string
}

// View is the product as presented to storefront clients.
type View struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	Image       string
	Description string
	Category    string
	Tags        []string
	Variants    []Variant
	Sizes       []string
	// Status is StatusNew, StatusDiscount or empty.
	Status string
}

// Variant is a color variation of a product.
type Variant struct {
	Color string
	Sizes []string
}

// MalformedProductError indicates a backend record that cannot be converted.
type MalformedProductError struct {
	ProductID string
	Field     string
	Err       error
}

func (e *MalformedProductError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("malformed product: field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed product %s: field %s: %v", e.ProductID, e.Field, e.Err)
}

func (e *MalformedProductError) Unwrap() error {
	return e.Err
}

// Source fetches raw product records from the backend.
type Source interface {
	ListProducts(ctx context.Context) ([]Record, error)
	GetProduct(ctx context.Context, id string) (*Record, error)
	// CreateProduct submits a draft with its images. A nil record means the
	// backend accepted the draft without echoing it back.
	CreateProduct(ctx context.Context, d Draft, images []Image) (*Record, error)
}
