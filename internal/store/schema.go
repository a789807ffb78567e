package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS addresses (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	lat      REAL NOT NULL,
	lon      REAL NOT NULL,
	number   TEXT,
	street   TEXT NOT NULL,
	unit     TEXT,
	city     TEXT,
	district TEXT,
	region   TEXT,
	postcode TEXT,
	rank     REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS hashes (
	address_id INTEGER NOT NULL,
	hash       INTEGER NOT NULL,
	PRIMARY KEY (address_id, hash)
);

CREATE TABLE IF NOT EXISTS to_delete (
	address_id INTEGER PRIMARY KEY
);
`

const hashIndexDDL = `CREATE INDEX IF NOT EXISTS idx_hashes_hash ON hashes (hash);`
