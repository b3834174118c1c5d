package catalog

// SQL query constants, grouped by domain, matching the teacher's
// (internal/sync/state.go) practice of keeping multi-line query strings out
// of the function bodies that use them.

const recordColumns = `file_path, content_hash, size, mtime, fsm_state, version,
	remote_raw_id, remote_doc_id, remote_operation_name, orphan_raw_id, orphan_doc_id, missing_since,
	upload_hash, enrichment_version, error_reason, attempt_count,
	remote_expiration, created_at, updated_at`

const sqlGetRecord = `SELECT ` + recordColumns + ` FROM file_records WHERE file_path = ?`

// sqlListPendingPrefix/sqlListPendingSuffix bracket the caller-built
// "IN (?, ?, ...)" clause for a variable number of draining states — see
// LoadPending. The gate (upload_hash != content_hash OR a stale
// enrichment_version) is spec.md P2's idempotency rule: a record whose
// upload_hash already equals its own content_hash under the current
// enrichment version has nothing new to submit and is skipped. UPLOADING
// and PROCESSING records pass regardless: their upload_hash was stamped
// when the raw bytes were submitted, and they still need their remaining
// edges driven.
const sqlListPendingPrefix = `SELECT ` + recordColumns + ` FROM file_records WHERE fsm_state IN (`
const sqlListPendingSuffix = `) AND (fsm_state IN ('UPLOADING', 'PROCESSING') OR upload_hash != content_hash OR enrichment_version != ?)
	ORDER BY updated_at ASC LIMIT ?`

const sqlListOrphans = `SELECT ` + recordColumns + ` FROM file_records
	WHERE orphan_raw_id IS NOT NULL`

const sqlListMissing = `SELECT ` + recordColumns + ` FROM file_records
	WHERE missing_since IS NOT NULL AND missing_since < ?`

const sqlListExpiring = `SELECT ` + recordColumns + ` FROM file_records
	WHERE remote_expiration IS NOT NULL AND remote_expiration < ? AND fsm_state = 'INDEXED'`

const sqlUpsertNew = `INSERT INTO file_records
	(file_path, content_hash, size, mtime, fsm_state, version,
	 upload_hash, enrichment_version, created_at, updated_at)
	VALUES (?, ?, ?, ?, 'UNTRACKED', 0, '', ?, ?, ?)
	ON CONFLICT(file_path) DO UPDATE SET
		content_hash = excluded.content_hash,
		size         = excluded.size,
		mtime        = excluded.mtime,
		updated_at   = excluded.updated_at`

const sqlInsertIntent = `INSERT INTO upload_intents
	(file_path, attempt_id, intended_state, started_at)
	VALUES (?, ?, ?, ?)`

const sqlFinishIntent = `UPDATE upload_intents SET finished_at = ?, outcome = ?
	WHERE file_path = ? AND attempt_id = ?`

const sqlListOpenIntents = `SELECT id, file_path, attempt_id, intended_state, started_at, finished_at, outcome
	FROM upload_intents WHERE finished_at = 0 ORDER BY started_at ASC`

const sqlInsertAudit = `INSERT INTO audit_log (file_path, from_state, to_state, reason, at)
	VALUES (?, ?, ?, ?, ?)`

const sqlListAuditByPath = `SELECT id, file_path, from_state, to_state, reason, at
	FROM audit_log WHERE file_path = ? ORDER BY at ASC`

const sqlListAuditErrors = `SELECT id, file_path, from_state, to_state, reason, at
	FROM audit_log WHERE to_state = 'FAILED' ORDER BY at DESC LIMIT ?`

const sqlListTrackedPaths = `SELECT file_path FROM file_records WHERE missing_since IS NULL`

const sqlCountByState = `SELECT fsm_state, COUNT(*) FROM file_records GROUP BY fsm_state`

const sqlGetConfig = `SELECT value FROM library_config WHERE key = ?`

const sqlSaveConfig = `INSERT INTO library_config (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`
