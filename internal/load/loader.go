package load

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fashionstore/salepipe/internal/errors"
	"github.com/fashionstore/salepipe/internal/extract"
	"github.com/fashionstore/salepipe/internal/warehouse"
)

// EntityCount tracks insert outcomes for one target table.
type EntityCount struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"` // pre-existing rows left untouched by ON CONFLICT
}

// Result summarizes one load transaction.
type Result struct {
	BatchID      string      `json:"batch_id"`
	Clients      EntityCount `json:"clients"`
	Products     EntityCount `json:"products"`
	Sales        EntityCount `json:"sales"`
	Lines        EntityCount `json:"lines"`
	RowsLoaded   int         `json:"rows_loaded"`
	RowsRejected int         `json:"rows_rejected"`

	// LinesOrphaned counts sale lines excluded because their sale or
	// product resolved nowhere. The originating rows are already in
	// RowsRejected; this is the line-level view of the same defects.
	LinesOrphaned int `json:"lines_orphaned"`
}

// Loader writes a filtered batch into the warehouse as one transaction.
type Loader struct {
	db        *sql.DB
	driver    string
	threshold float64 // rejected/total fraction above which the batch is refused
	log       *logrus.Entry
}

// NewLoader creates a loader for the given warehouse connection.
// driver selects placeholder rebinding; threshold is the error-rate limit.
func NewLoader(db *sql.DB, driver string, threshold float64, log *logrus.Entry) *Loader {
	return &Loader{db: db, driver: driver, threshold: threshold, log: log}
}

// Load projects the batch into the four entity tables and commits them as
// a single transaction in foreign-key order, together with the load_batch
// ledger row that makes a duplicate load for the date fail at commit.
//
// Row-level defects are excluded and counted, not fatal; when the defect
// rate exceeds the threshold the whole transaction is rolled back with
// BATCH_REJECTED.
func (l *Loader) Load(ctx context.Context, dateISO, runID string, batch *extract.Batch) (*Result, error) {
	clients, products, sales, lines, rejected := l.normalize(batch)

	total := len(batch.Rows)
	if total > 0 {
		rate := float64(rejected) / float64(total)
		if rate > l.threshold {
			return nil, errors.NewBatchRejectedError(
				fmt.Sprintf("%d of %d rows defective (%.0f%% > %.0f%% threshold)",
					rejected, total, rate*100, l.threshold*100))
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewConnectivityError(errors.CodeWarehouseUnavailable,
			"failed to begin load transaction", err)
	}
	defer tx.Rollback()

	result := &Result{BatchID: uuid.NewString()}

	if err := l.insertClients(ctx, tx, clients, result); err != nil {
		return nil, err
	}
	if err := l.insertProducts(ctx, tx, products, result); err != nil {
		return nil, err
	}
	if err := l.insertSales(ctx, tx, sales, result); err != nil {
		return nil, err
	}

	if err := l.insertLines(ctx, tx, lines, sales, products, result); err != nil {
		return nil, err
	}

	result.RowsRejected = rejected
	result.RowsLoaded = total - rejected

	if err := l.insertLedger(ctx, tx, dateISO, runID, result); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if warehouse.IsUniqueViolation(err) {
			return nil, errors.New(errors.ErrCategoryIntegrity, errors.CodeDuplicateLoad,
				fmt.Sprintf("date %s was loaded by a concurrent run", dateISO))
		}
		return nil, errors.NewConnectivityError(errors.CodeWarehouseUnavailable,
			"failed to commit load transaction", err)
	}

	l.log.WithFields(logrus.Fields{
		"batch_id": result.BatchID,
		"date":     dateISO,
		"loaded":   result.RowsLoaded,
		"rejected": result.RowsRejected,
	}).Info("batch committed")

	return result, nil
}

// normalize projects every row and deduplicates by natural key, first
// occurrence wins. Later occurrences of a key within the batch are
// confirmations, not conflicts. Returns the per-entity maps in insertion
// order plus the count of rows with at least one defect.
func (l *Loader) normalize(batch *extract.Batch) (
	clients []*Client, products []*Product, sales []*Sale, lines []*SaleLine, rejected int,
) {
	seenClient := make(map[int64]struct{})
	seenProduct := make(map[int64]struct{})
	seenSale := make(map[int64]struct{})
	seenLine := make(map[int64]struct{})

	for i := range batch.Rows {
		p := project(&batch.Rows[i])

		if len(p.defects) > 0 {
			rejected++
			l.log.WithFields(logrus.Fields{
				"sale_id": batch.Rows[i].SaleID,
				"item_id": batch.Rows[i].ItemID,
				"defects": p.defects,
			}).Warn("excluding defective row components")
		}

		if p.client != nil {
			if _, ok := seenClient[p.client.CustomerID]; !ok {
				seenClient[p.client.CustomerID] = struct{}{}
				clients = append(clients, p.client)
			}
		}
		if p.product != nil {
			if _, ok := seenProduct[p.product.ProductID]; !ok {
				seenProduct[p.product.ProductID] = struct{}{}
				products = append(products, p.product)
			}
		}
		if p.sale != nil {
			if _, ok := seenSale[p.sale.SaleID]; !ok {
				seenSale[p.sale.SaleID] = struct{}{}
				sales = append(sales, p.sale)
			}
		}
		if p.line != nil {
			if _, ok := seenLine[p.line.ItemID]; !ok {
				seenLine[p.line.ItemID] = struct{}{}
				lines = append(lines, p.line)
			}
		}
	}
	return
}

func (l *Loader) insertClients(ctx context.Context, tx *sql.Tx, clients []*Client, result *Result) error {
	query := warehouse.Rebind(l.driver, `
		INSERT INTO client (customer_id, first_name, last_name, email, country, signup_date, gender, age_range)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id) DO NOTHING`)

	for _, c := range clients {
		res, err := tx.ExecContext(ctx, query,
			c.CustomerID, nullable(c.FirstName), nullable(c.LastName),
			nullable(c.Email), nullable(c.Country), nullable(c.SignupDate),
			nullable(c.Gender), nullable(c.AgeRange))
		if err != nil {
			return errors.NewConnectivityError(errors.CodeWarehouseUnavailable,
				fmt.Sprintf("failed to insert client %d", c.CustomerID), err)
		}
		countAffected(res, &result.Clients)
	}
	return nil
}

func (l *Loader) insertProducts(ctx context.Context, tx *sql.Tx, products []*Product, result *Result) error {
	query := warehouse.Rebind(l.driver, `
		INSERT INTO product (product_id, product_name, brand, category, cost_price, color, size, catalog_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id) DO NOTHING`)

	for _, p := range products {
		res, err := tx.ExecContext(ctx, query,
			p.ProductID, nullable(p.ProductName), nullable(p.Brand),
			nullable(p.Category), p.CostPrice, nullable(p.Color),
			nullable(p.Size), p.CatalogPrice)
		if err != nil {
			return errors.NewConnectivityError(errors.CodeWarehouseUnavailable,
				fmt.Sprintf("failed to insert product %d", p.ProductID), err)
		}
		countAffected(res, &result.Products)
	}
	return nil
}

func (l *Loader) insertSales(ctx context.Context, tx *sql.Tx, sales []*Sale, result *Result) error {
	query := warehouse.Rebind(l.driver, `
		INSERT INTO sale (sale_id, sale_date, channel, channel_campaigns, customer_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (sale_id) DO NOTHING`)

	for _, s := range sales {
		res, err := tx.ExecContext(ctx, query,
			s.SaleID, s.SaleDate, nullable(s.Channel),
			nullable(s.ChannelCampaigns), s.CustomerID)
		if err != nil {
			return errors.NewConnectivityError(errors.CodeWarehouseUnavailable,
				fmt.Sprintf("failed to insert sale %d", s.SaleID), err)
		}
		countAffected(res, &result.Sales)
	}
	return nil
}

// insertLines writes sale lines, verifying each line's sale and product
// resolve either within the batch or to already-persisted rows. Orphaned
// lines are excluded and counted, not fatal.
func (l *Loader) insertLines(ctx context.Context, tx *sql.Tx, lines []*SaleLine, sales []*Sale, products []*Product, result *Result) error {
	saleSet := make(map[int64]struct{}, len(sales))
	for _, s := range sales {
		saleSet[s.SaleID] = struct{}{}
	}
	productSet := make(map[int64]struct{}, len(products))
	for _, p := range products {
		productSet[p.ProductID] = struct{}{}
	}

	query := warehouse.Rebind(l.driver, `
		INSERT INTO sale_product (item_id, sale_id, product_id, quantity, discount_applied)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO NOTHING`)

	for _, line := range lines {
		ok, err := l.lineReferencesResolve(ctx, tx, line, saleSet, productSet)
		if err != nil {
			return err
		}
		if !ok {
			result.LinesOrphaned++
			integrityErr := errors.NewIntegrityError("sale line references absent sale or product").
				WithDetails(map[string]interface{}{
					"item_id":    line.ItemID,
					"sale_id":    line.SaleID,
					"product_id": line.ProductID,
				})
			l.log.WithError(integrityErr).Warn("excluding orphaned sale line")
			continue
		}

		res, err := tx.ExecContext(ctx, query,
			line.ItemID, line.SaleID, line.ProductID, line.Quantity, line.DiscountApplied)
		if err != nil {
			return errors.NewConnectivityError(errors.CodeWarehouseUnavailable,
				fmt.Sprintf("failed to insert sale line %d", line.ItemID), err)
		}
		countAffected(res, &result.Lines)
	}
	return nil
}

// lineReferencesResolve checks the line's sale and product against the
// batch first, then against rows persisted by earlier loads.
func (l *Loader) lineReferencesResolve(ctx context.Context, tx *sql.Tx, line *SaleLine, saleSet, productSet map[int64]struct{}) (bool, error) {
	if _, ok := saleSet[line.SaleID]; !ok {
		exists, err := l.existsInTx(ctx, tx, "sale", "sale_id", line.SaleID)
		if err != nil || !exists {
			return false, err
		}
	}
	if _, ok := productSet[line.ProductID]; !ok {
		exists, err := l.existsInTx(ctx, tx, "product", "product_id", line.ProductID)
		if err != nil || !exists {
			return false, err
		}
	}
	return true, nil
}

func (l *Loader) existsInTx(ctx context.Context, tx *sql.Tx, table, column string, id int64) (bool, error) {
	query := warehouse.Rebind(l.driver,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = ?)", table, column))

	var exists bool
	if err := tx.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, errors.NewConnectivityError(errors.CodeWarehouseUnavailable,
			fmt.Sprintf("failed to check %s existence", table), err)
	}
	return exists, nil
}

// insertLedger records the load in load_batch. The UNIQUE(sale_date)
// constraint turns a concurrent duplicate load into an insert failure here
// or at commit, never into duplicate sale rows.
func (l *Loader) insertLedger(ctx context.Context, tx *sql.Tx, dateISO, runID string, result *Result) error {
	query := warehouse.Rebind(l.driver, `
		INSERT INTO load_batch (batch_id, sale_date, run_id, row_count, loaded_at)
		VALUES (?, ?, ?, ?, ?)`)

	_, err := tx.ExecContext(ctx, query,
		result.BatchID, dateISO, runID, result.RowsLoaded, time.Now().UTC())
	if err != nil {
		if warehouse.IsUniqueViolation(err) {
			return errors.New(errors.ErrCategoryIntegrity, errors.CodeDuplicateLoad,
				fmt.Sprintf("date %s was loaded by a concurrent run", dateISO))
		}
		return errors.NewConnectivityError(errors.CodeWarehouseUnavailable,
			"failed to insert load ledger row", err)
	}
	return nil
}

func countAffected(res sql.Result, count *EntityCount) {
	n, err := res.RowsAffected()
	if err == nil && n > 0 {
		count.Inserted++
		return
	}
	count.Skipped++
}
