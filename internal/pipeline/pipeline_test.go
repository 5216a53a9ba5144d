package pipeline

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fashionstore/salepipe/internal/errors"
	"github.com/fashionstore/salepipe/internal/extract"
	"github.com/fashionstore/salepipe/internal/load"
	"github.com/fashionstore/salepipe/internal/storage"
)

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

	fields := make([]string, len(extract.FeedColumns))
	for i, col := range extract.FeedColumns {
		fields[i] = defaults[col]
	}
	return strings.Join(fields, ",")
}

func feedCSV(rows ...string) string {
	lines := append([]string{strings.Join(extract.FeedColumns, ",")}, rows...)
	return strings.Join(lines, "\n") + "\n"
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}

type testHarness struct {
	db       *sql.DB
	store    *storage.LocalStorage
	pipeline *Pipeline
	sink     *recordingSink
}

func newHarness(t *testing.T, csvContent string, stagingDir string) *testHarness {
	t.Helper()
	db := openTestDB(t)

	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	if csvContent != "" {
		if err := store.Put(context.Background(), "fashion-store", "sales.csv",
			strings.NewReader(csvContent)); err != nil {
			t.Fatalf("failed to seed object: %v", err)
		}
	}

	var stager *extract.Stager
	if stagingDir != "" {
		stager, err = extract.NewStager(stagingDir)
		if err != nil {
			t.Fatalf("failed to create stager: %v", err)
		}
	}

	log := testLogger()
	sink := &recordingSink{}
	p := New(
		NewLoadGuard(db, "sqlite3", 1, time.Millisecond, log),
		extract.NewExtractor(store, log),
		stager,
		load.NewLoader(db, "sqlite3", 0.10, log),
		sink,
		log,
	)
	return &testHarness{db: db, store: store, pipeline: p, sink: sink}
}

func (h *testHarness) run(t *testing.T, date string) (*Summary, error) {
	t.Helper()
	return h.pipeline.Run(context.Background(), Params{
		Date:      date,
		Bucket:    "fashion-store",
		ObjectKey: "sales.csv",
	})
}

func TestRun_LoadsAndRecomputesView(t *testing.T) {
	h := newHarness(t, feedCSV(
		feedRow(nil),
		feedRow(map[string]string{"item_id": "1001", "sale_date": "2025-04-16"}),
	), "")

	summary, err := h.run(t, "20250415")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Status != StatusLoaded {
		t.Fatalf("expected loaded, got %s (%s)", summary.Status, summary.Message)
	}
	if summary.Result == nil || summary.Result.RowsLoaded != 1 {
		t.Fatalf("expected 1 row loaded, got %+v", summary.Result)
	}
	if summary.TotalRead != 2 {
		t.Errorf("total_read: got %d, want 2", summary.TotalRead)
	}

	var amount float64
	err = h.db.QueryRow(`SELECT sales_amount FROM sales WHERE item_id = 1000`).Scan(&amount)
	if err != nil {
		t.Fatalf("view query failed: %v", err)
	}
	if amount != 40.00 {
		t.Errorf("sales_amount: got %.2f, want 40.00", amount)
	}

	if len(h.sink.summaries) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(h.sink.summaries))
	}
	if h.sink.summaries[0].Status != StatusLoaded {
		t.Errorf("notified status: got %s", h.sink.summaries[0].Status)
	}
}

func TestRun_SecondRunSkips(t *testing.T) {
	h := newHarness(t, feedCSV(feedRow(nil)), "")

	if _, err := h.run(t, "20250415"); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	before := countRows(t, h.db, "sale_product")

	summary, err := h.run(t, "20250415")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Status != StatusAlreadyLoaded {
		t.Fatalf("expected already_loaded, got %s", summary.Status)
	}
	if got := countRows(t, h.db, "sale_product"); got != before {
		t.Errorf("second run changed sale_product rows: %d -> %d", before, got)
	}
	if got := countRows(t, h.db, "load_batch"); got != 1 {
		t.Errorf("expected single ledger row, got %d", got)
	}
}

func TestRun_NoDataForDate(t *testing.T) {
	h := newHarness(t, feedCSV(feedRow(nil)), "")

	summary, err := h.run(t, "20250417")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Status != StatusNoData {
		t.Fatalf("expected no_data, got %s", summary.Status)
	}
	if got := countRows(t, h.db, "sale"); got != 0 {
		t.Errorf("no_data run wrote %d sale rows", got)
	}
	if got := countRows(t, h.db, "load_batch"); got != 0 {
		t.Errorf("no_data run wrote %d ledger rows", got)
	}
}

func TestRun_MissingObjectFails(t *testing.T) {
	h := newHarness(t, "", "")

	summary, err := h.run(t, "20250415")
	if err == nil {
		t.Fatal("expected error for missing feed object")
	}
	if errors.GetCode(err) != errors.CodeObjectNotFound {
		t.Errorf("expected OBJECT_NOT_FOUND, got %s", errors.GetCode(err))
	}
	if summary.Status != StatusFailed {
		t.Errorf("expected failed summary, got %s", summary.Status)
	}
	if len(h.sink.summaries) != 1 || h.sink.summaries[0].Status != StatusFailed {
		t.Error("failure must still notify the sink")
	}
}

func TestRun_InvalidDateFails(t *testing.T) {
	h := newHarness(t, feedCSV(feedRow(nil)), "")

	summary, err := h.run(t, "not-a-date")
	if err == nil {
		t.Fatal("expected error for invalid date")
	}
	if errors.GetCode(err) != errors.CodeInvalidDate {
		t.Errorf("expected INVALID_DATE, got %s", errors.GetCode(err))
	}
	if summary.Status != StatusFailed {
		t.Errorf("expected failed summary, got %s", summary.Status)
	}
}

func TestRun_ContextDateFallback(t *testing.T) {
	h := newHarness(t, feedCSV(feedRow(nil)), "")

	summary, err := h.pipeline.Run(context.Background(), Params{
		ContextDate: "20250415",
		Bucket:      "fashion-store",
		ObjectKey:   "sales.csv",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Status != StatusLoaded {
		t.Fatalf("expected loaded, got %s", summary.Status)
	}
	if summary.Date != "2025-04-15" {
		t.Errorf("resolved date: got %s", summary.Date)
	}
}

func TestRun_SpoolsBatchWhenStagingEnabled(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, feedCSV(feedRow(nil)), dir)

	summary, err := h.run(t, "20250415")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.StagedPath == "" {
		t.Fatal("expected staged path in summary")
	}
	if _, err := os.Stat(summary.StagedPath); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}

	rows, err := extract.ReadSpool(summary.StagedPath)
	if err != nil {
		t.Fatalf("ReadSpool failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ItemID != "1000" {
		t.Errorf("unexpected spooled rows: %+v", rows)
	}
}
