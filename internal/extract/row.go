// Package extract fetches the raw sales feed from object storage and turns
// it into a filtered, deduplicated batch of raw rows for the loader.
package extract

import (
	"strings"

	"github.com/spaolacci/murmur3"
)

// Feed column names, in canonical order. The raw feed is one denormalized
// CSV row per sale line, carrying the client, product, sale and line
// attributes side by side.
var FeedColumns = []string{
	"item_id",
	"sale_id",
	"customer_id",
	"product_id",
	"quantity",
	"discount_applied",
	"sale_date",
	"channel",
	"channel_campaigns",
	"first_name",
	"last_name",
	"email",
	"country",
	"signup_date",
	"gender",
	"age_range",
	"product_name",
	"brand",
	"category",
	"cost_price",
	"color",
	"size",
	"catalog_price",
}

// RawRow is one parsed feed record. Values stay as strings until the
// loader projects them into typed entities; the extractor only checks
// presence of the identifying fields.
type RawRow struct {
	ItemID           string `json:"item_id"`
	SaleID           string `json:"sale_id"`
	CustomerID       string `json:"customer_id"`
	ProductID        string `json:"product_id"`
	Quantity         string `json:"quantity"`
	DiscountApplied  string `json:"discount_applied"`
	SaleDate         string `json:"sale_date"`
	Channel          string `json:"channel"`
	ChannelCampaigns string `json:"channel_campaigns"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	Country          string `json:"country"`
	SignupDate       string `json:"signup_date"`
	Gender           string `json:"gender"`
	AgeRange         string `json:"age_range"`
	ProductName      string `json:"product_name"`
	Brand            string `json:"brand"`
	Category         string `json:"category"`
	CostPrice        string `json:"cost_price"`
	Color            string `json:"color"`
	Size             string `json:"size"`
	CatalogPrice     string `json:"catalog_price"`
}

// HasRequiredIDs reports whether the row carries the identifiers the
// normalized schema cannot live without. Rows failing this are dropped and
// counted, never fatal to the batch.
func (r *RawRow) HasRequiredIDs() bool {
	return r.CustomerID != "" && r.ProductID != "" && r.SaleID != "" && r.ItemID != ""
}

// Fingerprint returns a 128-bit murmur3 hash over every field, used to
// drop exact whole-row duplicates within a batch without keeping the rows
// themselves around.
func (r *RawRow) Fingerprint() [2]uint64 {
	var b strings.Builder
	for i, f := range []string{
		r.ItemID, r.SaleID, r.CustomerID, r.ProductID,
		r.Quantity, r.DiscountApplied, r.SaleDate,
		r.Channel, r.ChannelCampaigns,
		r.FirstName, r.LastName, r.Email, r.Country,
		r.SignupDate, r.Gender, r.AgeRange,
		r.ProductName, r.Brand, r.Category,
		r.CostPrice, r.Color, r.Size, r.CatalogPrice,
	} {
		if i > 0 {
			b.WriteByte(0x1f) // unit separator keeps field boundaries unambiguous
		}
		b.WriteString(f)
	}
	h1, h2 := murmur3.Sum128([]byte(b.String()))
	return [2]uint64{h1, h2}
}

// Batch is the extractor's output: the filtered row set plus the counts
// the notification stage reports.
type Batch struct {
	DateISO    string
	Rows       []RawRow
	TotalRead  int // data rows read from the object, any date
	Matched    int // rows matching the target date before dedup/validation
	Duplicates int // exact whole-row duplicates dropped
	Dropped    int // rows dropped for missing required identifiers
}

// Empty reports whether the batch has no loadable rows.
func (b *Batch) Empty() bool {
	return len(b.Rows) == 0
}
