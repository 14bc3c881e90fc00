package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL DEFAULT '',
	sender     TEXT NOT NULL DEFAULT '',
	recipients TEXT NOT NULL DEFAULT '',
	date       DATETIME NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	folder     TEXT NOT NULL,
	account    TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	indexed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_emails_account ON emails(account);
CREATE INDEX IF NOT EXISTS idx_emails_folder ON emails(folder);
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date);
CREATE INDEX IF NOT EXISTS idx_emails_account_folder ON emails(account, folder);

CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5(
	subject, body, sender,
	content='emails', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS emails_fts_insert AFTER INSERT ON emails BEGIN
	INSERT INTO emails_fts(rowid, subject, body, sender)
	VALUES (new.rowid, new.subject, new.body, new.sender);
END;

CREATE TRIGGER IF NOT EXISTS emails_fts_delete AFTER DELETE ON emails BEGIN
	INSERT INTO emails_fts(emails_fts, rowid, subject, body, sender)
	VALUES ('delete', old.rowid, old.subject, old.body, old.sender);
END;

CREATE TRIGGER IF NOT EXISTS emails_fts_update AFTER UPDATE ON emails BEGIN
	INSERT INTO emails_fts(emails_fts, rowid, subject, body, sender)
	VALUES ('delete', old.rowid, old.subject, old.body, old.sender);
	INSERT INTO emails_fts(rowid, subject, body, sender)
	VALUES (new.rowid, new.subject, new.body, new.sender);
END;

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
