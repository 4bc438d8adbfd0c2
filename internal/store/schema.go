package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	base_asset TEXT,
	status TEXT NOT NULL DEFAULT 'active',
	hot INTEGER NOT NULL DEFAULT 0,
	quote_volume REAL NOT NULL DEFAULT 0,
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS open_interest (
	timestamp INTEGER NOT NULL,
	symbol_id INTEGER NOT NULL REFERENCES symbols(id),
	oi_contracts REAL NOT NULL,
	oi_usd REAL NOT NULL,
	mark_price REAL NOT NULL,
	PRIMARY KEY (timestamp, symbol_id)
);
CREATE INDEX IF NOT EXISTS idx_oi_symbol_ts ON open_interest(symbol_id, timestamp);

CREATE TABLE IF NOT EXISTS funding_rate (
	timestamp INTEGER NOT NULL,
	symbol_id INTEGER NOT NULL REFERENCES symbols(id),
	rate REAL NOT NULL,
	next_funding_time INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (timestamp, symbol_id)
);
CREATE INDEX IF NOT EXISTS idx_funding_symbol_ts ON funding_rate(symbol_id, timestamp);

CREATE TABLE IF NOT EXISTS long_short_ratio (
	timestamp INTEGER NOT NULL,
	symbol_id INTEGER NOT NULL REFERENCES symbols(id),
	ratio REAL NOT NULL,
	long_pct REAL NOT NULL,
	short_pct REAL NOT NULL,
	PRIMARY KEY (timestamp, symbol_id)
);
CREATE INDEX IF NOT EXISTS idx_ls_symbol_ts ON long_short_ratio(symbol_id, timestamp);

CREATE TABLE IF NOT EXISTS taker_ratio (
	timestamp INTEGER NOT NULL,
	symbol_id INTEGER NOT NULL REFERENCES symbols(id),
	buy_sell_ratio REAL NOT NULL,
	buy_vol REAL NOT NULL,
	sell_vol REAL NOT NULL,
	PRIMARY KEY (timestamp, symbol_id)
);
CREATE INDEX IF NOT EXISTS idx_taker_symbol_ts ON taker_ratio(symbol_id, timestamp);

CREATE TABLE IF NOT EXISTS anomalies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	detected_at INTEGER NOT NULL,
	cycle_ts INTEGER NOT NULL,
	symbol_id INTEGER NOT NULL REFERENCES symbols(id),
	kind TEXT NOT NULL,
	severity TEXT NOT NULL,
	value REAL NOT NULL,
	description TEXT NOT NULL,
	notified INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_anomalies_timestamp ON anomalies(detected_at);
CREATE INDEX IF NOT EXISTS idx_anomalies_cycle_ts ON anomalies(cycle_ts);

CREATE TABLE IF NOT EXISTS symbol_stats (
	symbol_id INTEGER PRIMARY KEY REFERENCES symbols(id),
	updated_at INTEGER NOT NULL,
	mean_funding REAL, std_funding REAL, has_funding INTEGER NOT NULL DEFAULT 0,
	mean_oi_change_1h REAL, std_oi_change_1h REAL, has_oi_change INTEGER NOT NULL DEFAULT 0,
	mean_ls REAL, std_ls REAL, has_ls INTEGER NOT NULL DEFAULT 0,
	mean_taker REAL, std_taker REAL, has_taker INTEGER NOT NULL DEFAULT 0,
	avg_oi_usd REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS collector_stats (
	cycle_ts INTEGER PRIMARY KEY,
	duration_sec REAL NOT NULL,
	requests_ok INTEGER NOT NULL,
	requests_fail INTEGER NOT NULL,
	pairs_collected INTEGER NOT NULL,
	anomalies_found INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS archive_cursor (
	table_name TEXT PRIMARY KEY,
	cursor_ts INTEGER NOT NULL
);
`
