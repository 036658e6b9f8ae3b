package sqlite

// migration is one versioned schema step.
type migration struct {
	version int
	sql     string
}

// migrations must stay sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	company_name      TEXT NOT NULL DEFAULT '',
	reminder_settings TEXT NOT NULL DEFAULT '{}',
	created_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS clients (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name             TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL,
	phone            TEXT,
	reminder_opt_out INTEGER NOT NULL DEFAULT 0,
	work_status      TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clients_project_email ON clients(project_id, email COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS reminders (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	client_id      TEXT NOT NULL,
	channel        TEXT NOT NULL CHECK (channel IN ('email', 'sms')),
	scheduled_at   TIMESTAMP NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending'
	               CHECK (status IN ('pending', 'sent', 'failed', 'canceled')),
	attempt_number INTEGER NOT NULL DEFAULT 0,
	template_key   TEXT,
	metadata       TEXT NOT NULL DEFAULT '{}',
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reminders_status_scheduled_at ON reminders(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_reminders_project_status ON reminders(project_id, status);
CREATE INDEX IF NOT EXISTS idx_reminders_client_status ON reminders(client_id, status);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
