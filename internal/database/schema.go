package database

// Schema is the full, idempotent, forward-only DDL for the system's
// relational store. Every statement is safe to re-run on every boot.
const Schema = `
CREATE TABLE IF NOT EXISTS indicators (
	id             TEXT PRIMARY KEY,
	display_name   TEXT NOT NULL,
	display_name_vi TEXT,
	category       TEXT NOT NULL,
	unit           TEXT,
	latest_value   REAL NOT NULL,
	change         REAL NOT NULL DEFAULT 0,
	change_pct     REAL NOT NULL DEFAULT 0,
	trend          TEXT NOT NULL DEFAULT 'stable',
	source         TEXT NOT NULL,
	source_url     TEXT,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS indicator_history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	indicator_id   TEXT NOT NULL REFERENCES indicators(id),
	value          REAL NOT NULL,
	previous_value REAL NOT NULL DEFAULT 0,
	change         REAL NOT NULL DEFAULT 0,
	change_pct     REAL NOT NULL DEFAULT 0,
	volume         REAL,
	date           DATETIME NOT NULL,
	recorded_at    DATETIME NOT NULL,
	source         TEXT NOT NULL,
	UNIQUE(indicator_id, date, value)
);
CREATE INDEX IF NOT EXISTS idx_indicator_history_lookup ON indicator_history(indicator_id, date DESC);

CREATE TABLE IF NOT EXISTS events (
	id                 TEXT PRIMARY KEY,
	hash               TEXT NOT NULL UNIQUE,
	type               TEXT NOT NULL,
	title              TEXT NOT NULL,
	summary            TEXT,
	content            TEXT,
	source             TEXT NOT NULL,
	source_url         TEXT NOT NULL,
	published_at       DATETIME NOT NULL,
	run_date           DATETIME NOT NULL,
	is_market_relevant INTEGER NOT NULL DEFAULT 0,
	category           TEXT,
	region             TEXT,
	linked_indicators  TEXT, -- JSON array
	base_score         REAL NOT NULL DEFAULT 0,
	score_factors      TEXT, -- JSON object
	current_score      REAL NOT NULL DEFAULT 0,
	decay_factor       REAL NOT NULL DEFAULT 0,
	boost_factor       REAL NOT NULL DEFAULT 1,
	display_section    TEXT NOT NULL DEFAULT 'archive',
	hot_topic          INTEGER NOT NULL DEFAULT 0,
	is_follow_up       INTEGER NOT NULL DEFAULT 0,
	last_ranked_at     DATETIME
);
CREATE INDEX IF NOT EXISTS idx_events_section ON events(display_section, current_score DESC);
CREATE INDEX IF NOT EXISTS idx_events_published ON events(published_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_source_title ON events(source, title);

CREATE TABLE IF NOT EXISTS causal_analyses (
	event_id              TEXT PRIMARY KEY REFERENCES events(id),
	matched_template_id   TEXT,
	chain                 TEXT, -- JSON array of strings
	confidence            TEXT NOT NULL DEFAULT 'uncertain',
	investigation_prompts TEXT, -- JSON array
	affected_indicators   TEXT, -- JSON array
	reasoning             TEXT
);

CREATE TABLE IF NOT EXISTS signals (
	id               TEXT PRIMARY KEY,
	source_event_id  TEXT NOT NULL REFERENCES events(id),
	direction        TEXT NOT NULL,
	target_indicator TEXT NOT NULL,
	target_range_low  REAL,
	target_range_high REAL,
	confidence       TEXT NOT NULL,
	timeframe_days   INTEGER NOT NULL,
	reasoning        TEXT,
	status           TEXT NOT NULL DEFAULT 'active',
	actual_value     REAL,
	created_at       DATETIME NOT NULL,
	expires_at       DATETIME NOT NULL,
	verified_at      DATETIME
);
CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status, expires_at);

CREATE TABLE IF NOT EXISTS themes (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	name_vi       TEXT,
	description   TEXT,
	strength      REAL NOT NULL DEFAULT 0,
	peak_strength REAL NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'emerging',
	first_seen_at DATETIME NOT NULL,
	last_seen_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_themes_status ON themes(status);

CREATE TABLE IF NOT EXISTS watchlist_items (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	indicator    TEXT,
	condition    TEXT,
	keyword      TEXT,
	trigger_date DATETIME,
	status       TEXT NOT NULL DEFAULT 'watching',
	snooze_until DATETIME,
	created_at   DATETIME NOT NULL,
	triggered_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_watchlist_status ON watchlist_items(status);

CREATE TABLE IF NOT EXISTS calendar_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event_name  TEXT NOT NULL,
	country     TEXT NOT NULL,
	date        TEXT NOT NULL,
	time        TEXT,
	importance  TEXT,
	previous    TEXT,
	forecast    TEXT,
	actual      TEXT,
	UNIQUE(date, event_name, country)
);

CREATE TABLE IF NOT EXISTS run_history (
	id                  TEXT PRIMARY KEY,
	started_at          DATETIME NOT NULL,
	finished_at         DATETIME,
	status              TEXT NOT NULL DEFAULT 'failed',
	summary             TEXT,
	metrics_ingested    INTEGER NOT NULL DEFAULT 0,
	calendar_ingested   INTEGER NOT NULL DEFAULT 0,
	events_collected    INTEGER NOT NULL DEFAULT 0,
	events_classified   INTEGER NOT NULL DEFAULT 0,
	events_relevant     INTEGER NOT NULL DEFAULT 0,
	duplicates_skipped  INTEGER NOT NULL DEFAULT 0,
	events_scored       INTEGER NOT NULL DEFAULT 0,
	events_ranked       INTEGER NOT NULL DEFAULT 0,
	errors              TEXT, -- JSON array
	stats               TEXT  -- JSON object
);
CREATE INDEX IF NOT EXISTS idx_run_history_started ON run_history(started_at DESC);

CREATE TABLE IF NOT EXISTS llm_call_history (
	id            TEXT PRIMARY KEY,
	timestamp     DATETIME NOT NULL,
	model         TEXT NOT NULL,
	messages      TEXT NOT NULL, -- JSON array
	response      TEXT,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens  INTEGER NOT NULL DEFAULT 0,
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	task_type     TEXT,
	run_id        TEXT,
	is_valid_json INTEGER NOT NULL DEFAULT 0,
	stop_reason   TEXT
);
CREATE INDEX IF NOT EXISTS idx_llm_call_history_run ON llm_call_history(run_id);
`
