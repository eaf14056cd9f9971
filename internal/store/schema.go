package store

// schema creates every table the persistence layer needs. The
// (document_id, view) unique index on processing_results and the
// single-row-per-document index on intermediate_results are the two
// load-bearing constraints the view engine's independence guarantee
// depends on (spec.md §3, §9).
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	blob_path   TEXT NOT NULL,
	file_size   INTEGER NOT NULL,
	file_type   TEXT NOT NULL,
	uploaded_at DATETIME NOT NULL,
	status      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents(uploaded_at);

CREATE TABLE IF NOT EXISTS processing_tasks (
	id             TEXT PRIMARY KEY,
	document_id    TEXT NOT NULL,
	stage          TEXT NOT NULL,
	status         TEXT NOT NULL,
	progress       INTEGER NOT NULL DEFAULT 0,
	current_stage  TEXT,
	error_message  TEXT,
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_document ON processing_tasks(document_id);
CREATE INDEX IF NOT EXISTS idx_tasks_started_at ON processing_tasks(started_at);

CREATE TABLE IF NOT EXISTS intermediate_results (
	document_id       TEXT PRIMARY KEY,
	raw_text          TEXT NOT NULL,
	preprocessed_text TEXT NOT NULL,
	segments_json     TEXT NOT NULL,
	metadata_json     TEXT
);

CREATE TABLE IF NOT EXISTS document_view_profiles (
	document_id      TEXT PRIMARY KEY,
	primary_view     TEXT NOT NULL,
	enabled_views    TEXT NOT NULL,
	detection_scores TEXT NOT NULL,
	detection_method TEXT NOT NULL,
	confidence       REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_results (
	document_id          TEXT NOT NULL,
	view                 TEXT NOT NULL,
	result_data_json      TEXT NOT NULL,
	is_primary           INTEGER NOT NULL DEFAULT 0,
	processing_time_secs REAL NOT NULL,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL,
	PRIMARY KEY (document_id, view)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_results_doc_view ON processing_results(document_id, view);

CREATE TABLE IF NOT EXISTS ai_call_metrics (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id      TEXT,
	call_type        TEXT NOT NULL,
	status           TEXT NOT NULL,
	response_time_ms INTEGER NOT NULL,
	error_type       TEXT,
	retry_count      INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_created_at ON ai_call_metrics(created_at);
CREATE INDEX IF NOT EXISTS idx_metrics_document ON ai_call_metrics(document_id);

CREATE TABLE IF NOT EXISTS ai_result_quality (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id          TEXT NOT NULL,
	view                 TEXT NOT NULL,
	field_completeness   REAL NOT NULL,
	confidence_avg       REAL NOT NULL,
	confidence_min       REAL NOT NULL,
	confidence_max       REAL NOT NULL,
	sources_count        INTEGER NOT NULL,
	sources_completeness REAL NOT NULL,
	quality_score        REAL NOT NULL,
	created_at           DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quality_document ON ai_result_quality(document_id);
`
