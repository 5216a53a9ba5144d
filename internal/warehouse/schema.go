// Package warehouse provides the relational schema and connection handling
// for the normalized sales store.
package warehouse

// Schema contains the SQL definitions for the four-entity sales model, the
// derived sales view, and the load_batch ledger. DDL is written to the
// dialect subset shared by PostgreSQL and SQLite so the same statements run
// against both drivers.

// CreateClientTableSQL creates the client table.
// A client is created on first sighting of a customer in the raw feed and
// never deleted; customer_id is stable.
const CreateClientTableSQL = `
CREATE TABLE IF NOT EXISTS client (
    customer_id BIGINT PRIMARY KEY,
    first_name VARCHAR(128),
    last_name VARCHAR(128),
    email VARCHAR(256),
    country VARCHAR(64),
    signup_date DATE,
    gender VARCHAR(16),
    age_range VARCHAR(16)
)`

// CreateProductTableSQL creates the product table.
const CreateProductTableSQL = `
CREATE TABLE IF NOT EXISTS product (
    product_id BIGINT PRIMARY KEY,
    product_name VARCHAR(256),
    brand VARCHAR(128),
    category VARCHAR(128),
    cost_price NUMERIC(10,2),
    color VARCHAR(64),
    size VARCHAR(32),
    catalog_price NUMERIC(10,2)
)`

// CreateSaleTableSQL creates the sale table (one row per transaction header).
const CreateSaleTableSQL = `
CREATE TABLE IF NOT EXISTS sale (
    sale_id BIGINT PRIMARY KEY,
    sale_date DATE NOT NULL,
    channel VARCHAR(64),
    channel_campaigns VARCHAR(256),
    customer_id BIGINT NOT NULL,
    FOREIGN KEY (customer_id) REFERENCES client(customer_id)
)`

// CreateSaleProductTableSQL creates the sale_product table (one row per
// product line within a transaction). discount_applied keeps the feed's
// two-digit precision: values in [0, 1).
const CreateSaleProductTableSQL = `
CREATE TABLE IF NOT EXISTS sale_product (
    item_id BIGINT PRIMARY KEY,
    sale_id BIGINT NOT NULL,
    product_id BIGINT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    discount_applied NUMERIC(3,2) NOT NULL CHECK (discount_applied >= 0 AND discount_applied < 1),
    FOREIGN KEY (sale_id) REFERENCES sale(sale_id),
    FOREIGN KEY (product_id) REFERENCES product(product_id)
)`

// CreateLoadBatchTableSQL creates the load ledger. The UNIQUE constraint on
// sale_date is what makes duplicate loads fail at commit time when two runs
// for the same date race past the LoadGuard check.
const CreateLoadBatchTableSQL = `
CREATE TABLE IF NOT EXISTS load_batch (
    batch_id VARCHAR(64) PRIMARY KEY,
    sale_date DATE NOT NULL UNIQUE,
    run_id VARCHAR(64) NOT NULL,
    row_count INTEGER NOT NULL,
    loaded_at TIMESTAMP NOT NULL
)`

// CreateIndexesSQL creates the lookup indexes the pipeline queries need.
var CreateIndexesSQL = []string{
	// LoadGuard probes sale by date on every run
	`CREATE INDEX IF NOT EXISTS idx_sale_date ON sale(sale_date)`,

	`CREATE INDEX IF NOT EXISTS idx_sale_customer ON sale(customer_id)`,

	`CREATE INDEX IF NOT EXISTS idx_sale_product_sale ON sale_product(sale_id)`,

	`CREATE INDEX IF NOT EXISTS idx_sale_product_product ON sale_product(product_id)`,
}

// SalesViewSQL defines the derived read view. sales_amount is always
// recomputed from quantity, catalog_price and discount_applied, never
// stored. Neither PostgreSQL nor SQLite supports the same conditional
// CREATE VIEW syntax, so the view is dropped and recreated on migration.
var SalesViewSQL = []string{
	`DROP VIEW IF EXISTS sales`,

	`CREATE VIEW sales AS
SELECT
    sp.item_id,
    s.sale_id,
    s.sale_date,
    s.channel,
    s.customer_id,
    sp.product_id,
    sp.quantity,
    sp.discount_applied,
    p.catalog_price,
    sp.quantity * p.catalog_price * (1 - sp.discount_applied) AS sales_amount
FROM sale_product sp
JOIN sale s ON s.sale_id = sp.sale_id
JOIN product p ON p.product_id = sp.product_id`,
}

// AllSchemaSQL returns every schema statement in dependency order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateClientTableSQL,
		CreateProductTableSQL,
		CreateSaleTableSQL,
		CreateSaleProductTableSQL,
		CreateLoadBatchTableSQL,
	}
	stmts = append(stmts, CreateIndexesSQL...)
	stmts = append(stmts, SalesViewSQL...)
	return stmts
}
