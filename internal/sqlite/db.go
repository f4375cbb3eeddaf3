package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema. In production, migrations should be run
// via the migrate CLI or embed package.
func (db *DB) RunMigrations() error {
	migration := `
-- Tenants: isolation boundary plus per-tenant numeric precision
CREATE TABLE tenants (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    decimal_precision INTEGER NOT NULL DEFAULT 2,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Tree structures and their ordered typed levels
CREATE TABLE trees (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (tenant_id) REFERENCES tenants(id)
);
CREATE INDEX idx_tenant_trees ON trees(tenant_id);

CREATE TABLE tree_levels (
    tree_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    node_type TEXT NOT NULL,
    PRIMARY KEY (tree_id, position),
    FOREIGN KEY (tree_id) REFERENCES trees(id)
);

-- Nodes: the hierarchy itself. generation is a notification stamp bumped on
-- every pending-recompute enqueue, read by host-side caches.
CREATE TABLE nodes (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tree_id TEXT NOT NULL,
    type TEXT NOT NULL,
    parent_id TEXT,
    generation INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (tenant_id) REFERENCES tenants(id),
    FOREIGN KEY (tree_id) REFERENCES trees(id),
    FOREIGN KEY (parent_id) REFERENCES nodes(id)
);
CREATE INDEX idx_tenant_nodes ON nodes(tenant_id);
CREATE INDEX idx_parent_nodes ON nodes(parent_id);
CREATE INDEX idx_tree_type_nodes ON nodes(tenant_id, tree_id, type);

-- Property values, one row per node and slot. Aggregate and formula slots
-- live here next to stored properties; value NULL is an explicit null.
CREATE TABLE node_values (
    tenant_id TEXT NOT NULL,
    node_id TEXT NOT NULL,
    property TEXT NOT NULL,
    value TEXT,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (node_id, property),
    FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE
);
CREATE INDEX idx_tenant_values ON node_values(tenant_id);

-- Version history. Written for user edits and formula changes only; never
-- for aggregate slot writes.
CREATE TABLE node_versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    node_id TEXT NOT NULL,
    property TEXT NOT NULL,
    value TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE
);
CREATE INDEX idx_node_versions ON node_versions(tenant_id, node_id);

-- Predicate-referenced data
CREATE TABLE node_tags (
    tenant_id TEXT NOT NULL,
    node_id TEXT NOT NULL,
    tag TEXT NOT NULL,
    PRIMARY KEY (node_id, tag),
    FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE
);
CREATE INDEX idx_tenant_tags ON node_tags(tenant_id);

CREATE TABLE tenant_variables (
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (tenant_id, name),
    FOREIGN KEY (tenant_id) REFERENCES tenants(id)
);

-- Aggregate definitions
CREATE TABLE aggregate_defs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tree_id TEXT NOT NULL,
    name TEXT NOT NULL,
    function TEXT NOT NULL CHECK(function IN ('SUM', 'AVG', 'MIN', 'MAX', 'COUNT')),
    source_kind TEXT NOT NULL CHECK(source_kind IN ('property', 'formula', 'none')),
    source TEXT NOT NULL DEFAULT '',
    owner_type TEXT NOT NULL,
    scope_kind TEXT NOT NULL CHECK(scope_kind IN ('children', 'descendants')),
    scope_type TEXT NOT NULL DEFAULT '',
    predicate TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (tenant_id, name),
    FOREIGN KEY (tenant_id) REFERENCES tenants(id),
    FOREIGN KEY (tree_id) REFERENCES trees(id)
);
CREATE INDEX idx_tenant_aggregates ON aggregate_defs(tenant_id);
CREATE INDEX idx_tree_aggregates ON aggregate_defs(tenant_id, tree_id);
CREATE INDEX idx_source_aggregates ON aggregate_defs(tenant_id, source);

-- Formula definitions and their static reference edges. The reference graph
-- is acyclic by construction; creation-time validation rejects cycles.
CREATE TABLE formula_defs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    owner_type TEXT NOT NULL,
    expression TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (tenant_id, name),
    FOREIGN KEY (tenant_id) REFERENCES tenants(id)
);

CREATE TABLE formula_refs (
    formula_id TEXT NOT NULL,
    ref_name TEXT NOT NULL,
    PRIMARY KEY (formula_id, ref_name),
    FOREIGN KEY (formula_id) REFERENCES formula_defs(id) ON DELETE CASCADE
);
CREATE INDEX idx_formula_refs ON formula_refs(ref_name);

-- Staleness ledger. The composite primary key is the insert-if-absent
-- guarantee: concurrent marks of the same tuple collapse into one entry.
CREATE TABLE stale_entries (
    tenant_id TEXT NOT NULL,
    node_id TEXT NOT NULL,
    definition_id TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (tenant_id, node_id, definition_id)
);

-- Message queue, two logical channels. leased rows are invisible to further
-- leases until acked (deleted) or nacked (released).
CREATE TABLE queue_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    channel TEXT NOT NULL CHECK(channel IN ('node', 'tenant')),
    tenant_id TEXT NOT NULL,
    definition_id TEXT NOT NULL,
    node_id TEXT,
    requested_by TEXT NOT NULL DEFAULT '',
    leased INTEGER NOT NULL DEFAULT 0,
    enqueued_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX idx_channel_queue ON queue_messages(channel, leased, id);

-- API keys for host authentication
CREATE TABLE api_keys (
    key_hash TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_used TIMESTAMP,
    description TEXT
);
CREATE INDEX idx_tenant_keys ON api_keys(tenant_id);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
