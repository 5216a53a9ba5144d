// Package load projects raw feed rows into the normalized sales entities
// and writes them transactionally in foreign-key order.
package load

import (
	"fmt"
	"strconv"

	"github.com/fashionstore/salepipe/internal/extract"
)

// Client is one customer record, keyed by customer_id.
type Client struct {
	CustomerID int64
	FirstName  string
	LastName   string
	Email      string
	Country    string
	SignupDate string
	Gender     string
	AgeRange   string
}

// Product is one catalog record, keyed by product_id.
type Product struct {
	ProductID    int64
	ProductName  string
	Brand        string
	Category     string
	CostPrice    *float64
	Color        string
	Size         string
	CatalogPrice *float64
}

// Sale is one transaction header, keyed by sale_id.
type Sale struct {
	SaleID           int64
	SaleDate         string
	Channel          string
	ChannelCampaigns string
	CustomerID       int64
}

// SaleLine is one product line within a transaction, keyed by item_id.
type SaleLine struct {
	ItemID          int64
	SaleID          int64
	ProductID       int64
	Quantity        int
	DiscountApplied float64
}

// projected holds the entities one raw row yields. A nil field means that
// component failed validation and is excluded; Defects records why.
type projected struct {
	client  *Client
	product *Product
	sale    *Sale
	line    *SaleLine
	defects []string
}

// project splits a raw row into its four entities. The client is the root
// of the dependency chain: if customer_id does not parse, nothing from the
// row is loadable. Other components fail independently, the way the
// original feed's defects arrive.
func project(row *extract.RawRow) projected {
	var p projected

	customerID, err := strconv.ParseInt(row.CustomerID, 10, 64)
	if err != nil {
		p.defects = append(p.defects, fmt.Sprintf("unparseable customer_id %q", row.CustomerID))
		return p
	}
	p.client = &Client{
		CustomerID: customerID,
		FirstName:  row.FirstName,
		LastName:   row.LastName,
		Email:      row.Email,
		Country:    row.Country,
		SignupDate: row.SignupDate,
		Gender:     row.Gender,
		AgeRange:   row.AgeRange,
	}

	product, defect := projectProduct(row)
	if defect != "" {
		p.defects = append(p.defects, defect)
	} else {
		p.product = product
	}

	sale, defect := projectSale(row, customerID)
	if defect != "" {
		p.defects = append(p.defects, defect)
	} else {
		p.sale = sale
	}

	line, defect := projectLine(row)
	if defect != "" {
		p.defects = append(p.defects, defect)
	} else {
		p.line = line
	}

	return p
}

func projectProduct(row *extract.RawRow) (*Product, string) {
	productID, err := strconv.ParseInt(row.ProductID, 10, 64)
	if err != nil {
		return nil, fmt.Sprintf("unparseable product_id %q", row.ProductID)
	}

	costPrice, err := parseOptionalPrice(row.CostPrice)
	if err != nil {
		return nil, fmt.Sprintf("unparseable cost_price %q", row.CostPrice)
	}
	catalogPrice, err := parseOptionalPrice(row.CatalogPrice)
	if err != nil {
		return nil, fmt.Sprintf("unparseable catalog_price %q", row.CatalogPrice)
	}

	return &Product{
		ProductID:    productID,
		ProductName:  row.ProductName,
		Brand:        row.Brand,
		Category:     row.Category,
		CostPrice:    costPrice,
		Color:        row.Color,
		Size:         row.Size,
		CatalogPrice: catalogPrice,
	}, ""
}

func projectSale(row *extract.RawRow, customerID int64) (*Sale, string) {
	saleID, err := strconv.ParseInt(row.SaleID, 10, 64)
	if err != nil {
		return nil, fmt.Sprintf("unparseable sale_id %q", row.SaleID)
	}
	return &Sale{
		SaleID:           saleID,
		SaleDate:         row.SaleDate,
		Channel:          row.Channel,
		ChannelCampaigns: row.ChannelCampaigns,
		CustomerID:       customerID,
	}, ""
}

func projectLine(row *extract.RawRow) (*SaleLine, string) {
	itemID, err := strconv.ParseInt(row.ItemID, 10, 64)
	if err != nil {
		return nil, fmt.Sprintf("unparseable item_id %q", row.ItemID)
	}
	saleID, err := strconv.ParseInt(row.SaleID, 10, 64)
	if err != nil {
		return nil, fmt.Sprintf("unparseable sale_id %q", row.SaleID)
	}
	productID, err := strconv.ParseInt(row.ProductID, 10, 64)
	if err != nil {
		return nil, fmt.Sprintf("unparseable product_id %q", row.ProductID)
	}

	quantity, err := strconv.Atoi(row.Quantity)
	if err != nil || quantity <= 0 {
		return nil, fmt.Sprintf("invalid quantity %q", row.Quantity)
	}

	discount, err := strconv.ParseFloat(row.DiscountApplied, 64)
	if err != nil || discount < 0 || discount >= 1 {
		return nil, fmt.Sprintf("discount_applied %q outside [0, 1)", row.DiscountApplied)
	}

	return &SaleLine{
		ItemID:          itemID,
		SaleID:          saleID,
		ProductID:       productID,
		Quantity:        quantity,
		DiscountApplied: discount,
	}, ""
}

// parseOptionalPrice parses a price field, treating the empty string as
// absent (NULL), matching the feed's missing-value convention.
func parseOptionalPrice(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// nullable maps the empty string to NULL for insert parameters.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
