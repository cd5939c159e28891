package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'staff'
                  CHECK (role IN ('admin', 'head', 'manager', 'supervisor', 'warehouse', 'staff')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
    id            INTEGER PRIMARY KEY,
    name          TEXT NOT NULL,
    unit          TEXT NOT NULL,
    minimum_stock INTEGER NOT NULL DEFAULT 0 CHECK (minimum_stock >= 0),
    description   TEXT,
    image         BLOB,
    image_mime    TEXT,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    deleted_at    DATETIME
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id               INTEGER PRIMARY KEY,
    item_id          INTEGER NOT NULL REFERENCES items(id),
    delta            INTEGER NOT NULL CHECK (delta <> 0),
    balance_after    INTEGER NOT NULL CHECK (balance_after >= 0),
    reason           TEXT NOT NULL CHECK (reason IN
                     ('request_distribution', 'purchase_receipt', 'opname_adjustment', 'request_return')),
    reference_id     INTEGER NOT NULL,
    reference_number TEXT NOT NULL,
    actor_id         INTEGER,
    note             TEXT,
    created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_item
    ON ledger_entries(item_id, id);

CREATE TABLE IF NOT EXISTS ledger_balances (
    item_id       INTEGER PRIMARY KEY REFERENCES items(id),
    balance       INTEGER NOT NULL CHECK (balance >= 0),
    last_entry_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sequences (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS requests (
    id               INTEGER PRIMARY KEY,
    number           TEXT NOT NULL UNIQUE,
    requester_id     INTEGER NOT NULL,
    status           TEXT NOT NULL CHECK (status IN
                     ('pending', 'approved_l1', 'approved_l2', 'approved_l3', 'rejected', 'distributed', 'received')),
    note             TEXT,
    approved_l1_by   INTEGER,
    approved_l1_at   DATETIME,
    approved_l2_by   INTEGER,
    approved_l2_at   DATETIME,
    approved_l3_by   INTEGER,
    approved_l3_at   DATETIME,
    rejected_by      INTEGER,
    rejected_at      DATETIME,
    rejection_reason TEXT,
    distributed_by   INTEGER,
    distributed_at   DATETIME,
    received_at      DATETIME,
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS request_details (
    id                  INTEGER PRIMARY KEY,
    request_id          INTEGER NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
    item_id             INTEGER NOT NULL REFERENCES items(id),
    jumlah_diminta      INTEGER NOT NULL CHECK (jumlah_diminta > 0),
    jumlah_disetujui    INTEGER CHECK (jumlah_disetujui >= 0 AND jumlah_disetujui <= jumlah_diminta),
    jumlah_diberikan    INTEGER CHECK (jumlah_diberikan >= 0 AND jumlah_diberikan <= jumlah_disetujui),
    jumlah_dikembalikan INTEGER NOT NULL DEFAULT 0 CHECK (jumlah_dikembalikan >= 0)
);

CREATE INDEX IF NOT EXISTS idx_request_details_request
    ON request_details(request_id);

CREATE TABLE IF NOT EXISTS purchases (
    id           INTEGER PRIMARY KEY,
    number       TEXT NOT NULL UNIQUE,
    supplier     TEXT,
    status       TEXT NOT NULL CHECK (status IN ('draft', 'received', 'completed')),
    note         TEXT,
    created_by   INTEGER,
    received_by  INTEGER,
    received_at  DATETIME,
    completed_by INTEGER,
    completed_at DATETIME,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS purchase_lines (
    id                INTEGER PRIMARY KEY,
    purchase_id       INTEGER NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
    item_id           INTEGER NOT NULL REFERENCES items(id),
    quantity_ordered  INTEGER NOT NULL CHECK (quantity_ordered > 0),
    quantity_received INTEGER CHECK (quantity_received >= 0)
);

CREATE INDEX IF NOT EXISTS idx_purchase_lines_purchase
    ON purchase_lines(purchase_id);

CREATE TABLE IF NOT EXISTS stock_opnames (
    id          INTEGER PRIMARY KEY,
    number      TEXT NOT NULL UNIQUE,
    status      TEXT NOT NULL CHECK (status IN ('draft', 'counted', 'approved')),
    note        TEXT,
    created_by  INTEGER,
    counted_by  INTEGER,
    counted_at  DATETIME,
    approved_by INTEGER,
    approved_at DATETIME,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_opname_lines (
    id               INTEGER PRIMARY KEY,
    opname_id        INTEGER NOT NULL REFERENCES stock_opnames(id) ON DELETE CASCADE,
    item_id          INTEGER NOT NULL REFERENCES items(id),
    system_quantity  INTEGER NOT NULL CHECK (system_quantity >= 0),
    counted_quantity INTEGER CHECK (counted_quantity >= 0),
    variance         INTEGER
);

CREATE INDEX IF NOT EXISTS idx_stock_opname_lines_opname
    ON stock_opname_lines(opname_id);

CREATE TABLE IF NOT EXISTS status_history (
    id          INTEGER PRIMARY KEY,
    entity_type TEXT NOT NULL CHECK (entity_type IN ('request', 'purchase', 'opname')),
    entity_id   INTEGER NOT NULL,
    from_status TEXT,
    to_status   TEXT NOT NULL,
    actor_id    INTEGER,
    note        TEXT,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_history_entity
    ON status_history(entity_type, entity_id, id);
`

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return migrate(db)
}
