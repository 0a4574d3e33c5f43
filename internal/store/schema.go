package store

// Schema version tracking (metadata.db_version):
// 0 - empty database
// 1 - tracking_points, contract_checkins (no address), contracts, app_state
// 2 - contract_checkins.address, start_stop_events, identity indexes
const currentSchemaVersion = 2

// coreTables lists every table dropped by Reset, in drop order.
var coreTables = []string{
	"tracking_points",
	"start_stop_events",
	"contract_checkins",
	"contracts",
	"app_state",
	"metadata",
}

// baseSchema creates every table. contract_checkins is created in its
// version-1 shape; the address column is added by migration.
const baseSchema = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tracking_points (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	employee_id TEXT    NOT NULL,
	latitude    REAL    NOT NULL,
	longitude   REAL    NOT NULL,
	timestamp   TEXT    NOT NULL,
	uploaded    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS start_stop_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	employee_id TEXT    NOT NULL,
	kind        TEXT    NOT NULL CHECK (kind IN ('start', 'stop')),
	latitude    REAL    NOT NULL,
	longitude   REAL    NOT NULL,
	timestamp   TEXT    NOT NULL,
	address     TEXT    NOT NULL DEFAULT '',
	uploaded    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS contract_checkins (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	contract_id TEXT    NOT NULL,
	employee_id TEXT    NOT NULL,
	latitude    REAL    NOT NULL,
	longitude   REAL    NOT NULL,
	timestamp   TEXT    NOT NULL,
	comment     TEXT,
	uploaded    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS contracts (
	employee_id  TEXT PRIMARY KEY,
	payload      TEXT NOT NULL,
	refreshed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS app_state (
	key   TEXT PRIMARY KEY,
	value TEXT
);
`

// dedupStatements remove rows that would violate the identity indexes.
// The oldest row of each identity group is kept.
var dedupStatements = []string{
	`DELETE FROM tracking_points WHERE id NOT IN (
		SELECT MIN(id) FROM tracking_points
		GROUP BY employee_id, timestamp, latitude, longitude)`,
	`DELETE FROM start_stop_events WHERE id NOT IN (
		SELECT MIN(id) FROM start_stop_events
		GROUP BY employee_id, kind, timestamp)`,
	`DELETE FROM contract_checkins WHERE id NOT IN (
		SELECT MIN(id) FROM contract_checkins
		GROUP BY contract_id, employee_id, timestamp)`,
	`DELETE FROM contract_checkins
	WHERE contract_id <> '_tracking_' AND id NOT IN (
		SELECT MIN(id) FROM contract_checkins
		WHERE contract_id <> '_tracking_'
		GROUP BY contract_id, employee_id, substr(timestamp, 1, 10))`,
}

const indexSchema = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_tracking_identity
	ON tracking_points(employee_id, timestamp, latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_tracking_pending
	ON tracking_points(uploaded, timestamp);

CREATE UNIQUE INDEX IF NOT EXISTS idx_start_stop_identity
	ON start_stop_events(employee_id, kind, timestamp);
CREATE INDEX IF NOT EXISTS idx_start_stop_pending
	ON start_stop_events(uploaded, timestamp);

CREATE UNIQUE INDEX IF NOT EXISTS idx_checkin_identity
	ON contract_checkins(contract_id, employee_id, timestamp);
CREATE UNIQUE INDEX IF NOT EXISTS idx_checkin_daily
	ON contract_checkins(contract_id, employee_id, substr(timestamp, 1, 10))
	WHERE contract_id <> '_tracking_';
CREATE INDEX IF NOT EXISTS idx_checkin_pending
	ON contract_checkins(uploaded, timestamp);
`
