package extract

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	pkgerrors "github.com/fashionstore/salepipe/internal/errors"
	"github.com/fashionstore/salepipe/internal/storage"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// feedRow builds a full CSV record in FeedColumns order from overrides.
func feedRow(overrides map[string]string) string {
	defaults := map[string]string{
		"item_id":          "1000",
		"sale_id":          "100",
		"customer_id":      "1",
		"product_id":       "10",
		"quantity":         "2",
		"discount_applied": "0.0",
		"sale_date":        "2025-04-15",
		"channel":          "online",
		"first_name":       "Ada",
		"last_name":        "Martin",
		"email":            "ada@example.com",
		"country":          "FR",
		"signup_date":      "2024-01-01",
		"gender":           "F",
		"age_range":        "25-34",
		"product_name":     "Linen Shirt",
		"brand":            "Maison",
		"category":         "shirts",
		"cost_price":       "12.00",
		"color":            "white",
		"size":             "M",
		"catalog_price":    "20.00",
	}
	for k, v := range overrides {
		defaults[k] = v
	}

	fields := make([]string, len(FeedColumns))
	for i, col := range FeedColumns {
		fields[i] = defaults[col]
	}
	return strings.Join(fields, ",")
}

func feedCSV(rows ...string) string {
	lines := append([]string{strings.Join(FeedColumns, ",")}, rows...)
	return strings.Join(lines, "\n") + "\n"
}

func seededExtractor(t *testing.T, csvContent string) *Extractor {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	if err := store.Put(context.Background(), "fashion-store", "sales.csv", strings.NewReader(csvContent)); err != nil {
		t.Fatalf("failed to seed object: %v", err)
	}
	return NewExtractor(store, testLogger())
}

func TestExtract_FiltersByDate(t *testing.T) {
	e := seededExtractor(t, feedCSV(
		feedRow(map[string]string{"item_id": "1000", "sale_date": "2025-04-15"}),
		feedRow(map[string]string{"item_id": "1001", "sale_date": "2025-04-16"}),
		feedRow(map[string]string{"item_id": "1002", "sale_id": "101", "sale_date": "2025-04-15"}),
	))

	batch, err := e.Extract(context.Background(), "fashion-store", "sales.csv", "2025-04-15")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if batch.TotalRead != 3 {
		t.Errorf("total_read: got %d, want 3", batch.TotalRead)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(batch.Rows))
	}
	for _, row := range batch.Rows {
		if row.SaleDate != "2025-04-15" {
			t.Errorf("row %s has wrong date %s", row.ItemID, row.SaleDate)
		}
	}
}

func TestExtract_DropsExactDuplicates(t *testing.T) {
	dup := feedRow(nil)
	e := seededExtractor(t, feedCSV(dup, dup, dup))

	batch, err := e.Extract(context.Background(), "fashion-store", "sales.csv", "2025-04-15")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(batch.Rows) != 1 {
		t.Errorf("rows: got %d, want 1", len(batch.Rows))
	}
	if batch.Duplicates != 2 {
		t.Errorf("duplicates: got %d, want 2", batch.Duplicates)
	}
}

func TestExtract_DropsRowsMissingRequiredIDs(t *testing.T) {
	e := seededExtractor(t, feedCSV(
		feedRow(map[string]string{"customer_id": ""}),
		feedRow(map[string]string{"item_id": "1001", "product_id": ""}),
		feedRow(map[string]string{"item_id": "1002", "sale_id": ""}),
		feedRow(map[string]string{"item_id": "1003"}),
	))

	batch, err := e.Extract(context.Background(), "fashion-store", "sales.csv", "2025-04-15")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if batch.Dropped != 3 {
		t.Errorf("dropped: got %d, want 3", batch.Dropped)
	}
	if len(batch.Rows) != 1 {
		t.Errorf("rows: got %d, want 1", len(batch.Rows))
	}
}

func TestExtract_EmptyBatchForUnknownDate(t *testing.T) {
	e := seededExtractor(t, feedCSV(feedRow(nil)))

	batch, err := e.Extract(context.Background(), "fashion-store", "sales.csv", "1999-01-01")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !batch.Empty() {
		t.Error("batch should be empty for a date absent from the feed")
	}
}

func TestExtract_ObjectNotFound(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	e := NewExtractor(store, testLogger())

	_, err = e.Extract(context.Background(), "fashion-store", "missing.csv", "2025-04-15")
	if pkgerrors.GetCode(err) != pkgerrors.CodeObjectNotFound {
		t.Errorf("got %v, want OBJECT_NOT_FOUND", err)
	}
	if pkgerrors.IsRetryable(err) {
		t.Error("missing object must not be retryable")
	}
}

func TestExtract_MissingColumns(t *testing.T) {
	e := seededExtractor(t, "sale_id,customer_id\n100,1\n")

	_, err := e.Extract(context.Background(), "fashion-store", "sales.csv", "2025-04-15")
	if pkgerrors.GetCode(err) != pkgerrors.CodeMalformedInput {
		t.Errorf("got %v, want MALFORMED_INPUT", err)
	}
}

func TestExtract_RaggedRow(t *testing.T) {
	e := seededExtractor(t, feedCSV(feedRow(nil))+"1,2,3\n")

	_, err := e.Extract(context.Background(), "fashion-store", "sales.csv", "2025-04-15")
	if pkgerrors.GetCode(err) != pkgerrors.CodeMalformedInput {
		t.Errorf("got %v, want MALFORMED_INPUT", err)
	}
}

func TestFingerprint_SensitiveToEveryField(t *testing.T) {
	base := RawRow{ItemID: "1", SaleID: "2", CustomerID: "3", ProductID: "4"}
	other := base
	other.Color = "red"

	if base.Fingerprint() == other.Fingerprint() {
		t.Error("fingerprint should change when any field changes")
	}
	if base.Fingerprint() != base.Fingerprint() {
		t.Error("fingerprint should be deterministic")
	}
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc"
	a := RawRow{FirstName: "ab", LastName: "c"}
	b := RawRow{FirstName: "a", LastName: "bc"}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("field boundaries should be part of the fingerprint")
	}
}

func TestExtract_StorageErrIsConnectivity(t *testing.T) {
	e := NewExtractor(failingStorage{}, testLogger())

	_, err := e.Extract(context.Background(), "fashion-store", "sales.csv", "2025-04-15")
	if !pkgerrors.IsRetryable(err) {
		t.Errorf("transient storage failure should be retryable, got %v", err)
	}
}

type failingStorage struct{}

func (failingStorage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return nil, errors.New("connection reset")
}

func (failingStorage) Put(ctx context.Context, bucket, key string, body io.Reader) error {
	return errors.New("connection reset")
}

func (failingStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	return false, errors.New("connection reset")
}
