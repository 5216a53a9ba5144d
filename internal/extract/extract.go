package extract

import (
	"context"
	"encoding/csv"
	goerrors "errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/fashionstore/salepipe/internal/errors"
	"github.com/fashionstore/salepipe/internal/storage"
)

// Extractor fetches the raw CSV object and filters it to the target date.
type Extractor struct {
	store storage.ObjectStorage
	log   *logrus.Entry
}

// NewExtractor creates an extractor over the given object storage.
func NewExtractor(store storage.ObjectStorage, log *logrus.Entry) *Extractor {
	return &Extractor{store: store, log: log}
}

// Extract fetches bucket/key, parses it as CSV, and keeps rows whose
// sale_date equals dateISO (YYYY-MM-DD). Exact duplicate rows and rows
// missing required identifiers are dropped and counted. The object is
// streamed; nothing but the filtered rows is held in memory.
func (e *Extractor) Extract(ctx context.Context, bucket, key, dateISO string) (*Batch, error) {
	body, err := e.store.Get(ctx, bucket, key)
	if err != nil {
		if goerrors.Is(err, storage.ErrObjectNotFound) {
			return nil, errors.NewSourceError(errors.CodeObjectNotFound,
				fmt.Sprintf("source object %s/%s does not exist", bucket, key), err)
		}
		return nil, errors.NewConnectivityError(errors.CodeObjectStoreUnavailable,
			fmt.Sprintf("failed to fetch %s/%s", bucket, key), err)
	}
	defer body.Close()

	batch, err := e.parse(body, dateISO)
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"object":     bucket + "/" + key,
		"date":       dateISO,
		"total_read": batch.TotalRead,
		"matched":    batch.Matched,
		"duplicates": batch.Duplicates,
		"dropped":    batch.Dropped,
		"rows":       len(batch.Rows),
	}).Info("extraction complete")

	return batch, nil
}

// parse reads the CSV stream and builds the filtered batch.
func (e *Extractor) parse(r io.Reader, dateISO string) (*Batch, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, errors.NewSourceError(errors.CodeMalformedInput,
			"failed to read CSV header", err)
	}

	colIndex, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	batch := &Batch{DateISO: dateISO}
	seen := make(map[[2]uint64]struct{})

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewSourceError(errors.CodeMalformedInput,
				fmt.Sprintf("failed to parse CSV row %d", batch.TotalRead+2), err)
		}

		batch.TotalRead++

		row := recordToRow(record, colIndex)
		if row.SaleDate != dateISO {
			continue
		}
		batch.Matched++

		fp := row.Fingerprint()
		if _, dup := seen[fp]; dup {
			batch.Duplicates++
			continue
		}
		seen[fp] = struct{}{}

		if !row.HasRequiredIDs() {
			batch.Dropped++
			e.log.WithFields(logrus.Fields{
				"sale_id":     row.SaleID,
				"customer_id": row.CustomerID,
				"product_id":  row.ProductID,
			}).Warn("dropping row with missing required identifiers")
			continue
		}

		batch.Rows = append(batch.Rows, row)
	}

	return batch, nil
}

// mapHeader resolves the index of every feed column, failing when the
// expected column set is incomplete. Extra columns are tolerated.
func mapHeader(header []string) (map[string]int, error) {
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[name] = i
	}

	var missing []string
	for _, col := range FeedColumns {
		if _, ok := colIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewSourceError(errors.CodeMalformedInput,
			fmt.Sprintf("source object missing expected columns: %v", missing), nil)
	}
	return colIndex, nil
}

func recordToRow(record []string, colIndex map[string]int) RawRow {
	field := func(name string) string {
		i := colIndex[name]
		if i >= len(record) {
			return ""
		}
		return record[i]
	}

	return RawRow{
		ItemID:           field("item_id"),
		SaleID:           field("sale_id"),
		CustomerID:       field("customer_id"),
		ProductID:        field("product_id"),
		Quantity:         field("quantity"),
		DiscountApplied:  field("discount_applied"),
		SaleDate:         field("sale_date"),
		Channel:          field("channel"),
		ChannelCampaigns: field("channel_campaigns"),
		FirstName:        field("first_name"),
		LastName:         field("last_name"),
		Email:            field("email"),
		Country:          field("country"),
		SignupDate:       field("signup_date"),
		Gender:           field("gender"),
		AgeRange:         field("age_range"),
		ProductName:      field("product_name"),
		Brand:            field("brand"),
		Category:         field("category"),
		CostPrice:        field("cost_price"),
		Color:            field("color"),
		Size:             field("size"),
		CatalogPrice:     field("catalog_price"),
	}
}
