package postgres

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	category        TEXT NOT NULL,
	price           BIGINT NOT NULL CHECK (price >= 0),
	cost_price      BIGINT NOT NULL CHECK (cost_price >= 0),
	stock           INTEGER NOT NULL CHECK (stock >= 0),
	unit            TEXT NOT NULL,
	min_stock_alert INTEGER NOT NULL DEFAULT 5,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sales (
	id             TEXT PRIMARY KEY,
	invoice_number TEXT NOT NULL UNIQUE,
	customer_name  TEXT NOT NULL,
	customer_phone TEXT,
	subtotal       BIGINT NOT NULL,
	discount       BIGINT NOT NULL DEFAULT 0,
	tax            BIGINT NOT NULL DEFAULT 0,
	total_amount   BIGINT NOT NULL,
	profit         BIGINT NOT NULL,
	payment_method TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	pending_amount BIGINT NOT NULL DEFAULT 0,
	sale_date      TIMESTAMPTZ NOT NULL,
	notes          TEXT
);

CREATE INDEX IF NOT EXISTS idx_sales_sale_date ON sales (sale_date DESC);
CREATE INDEX IF NOT EXISTS idx_sales_payment_status ON sales (payment_status);

CREATE TABLE IF NOT EXISTS sale_items (
	id             BIGSERIAL PRIMARY KEY,
	sale_id        TEXT NOT NULL REFERENCES sales (id),
	product_id     TEXT NOT NULL REFERENCES products (id),
	product_name   TEXT NOT NULL,
	quantity       INTEGER NOT NULL CHECK (quantity > 0),
	unit           TEXT NOT NULL,
	price_per_unit BIGINT NOT NULL,
	cost_per_unit  BIGINT NOT NULL,
	total_price    BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sale_items_sale_id ON sale_items (sale_id);
CREATE INDEX IF NOT EXISTS idx_sale_items_product_id ON sale_items (product_id);

CREATE TABLE IF NOT EXISTS invoice_counters (
	period TEXT PRIMARY KEY,
	seq    INTEGER NOT NULL
);
`

// Migrate creates the schema when it does not exist yet. Safe to run on
// every startup.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return pgError(err)
}
