package sqlite

// Schema is the embedded SQLite schema. All statements are idempotent so
// the schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS grows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	species TEXT NOT NULL,
	variant TEXT NOT NULL DEFAULT '',
	tags TEXT,
	location TEXT NOT NULL DEFAULT '',
	spawn_type TEXT NOT NULL DEFAULT '',
	spawn_amount_lbs REAL NOT NULL DEFAULT 0,
	bulk_type TEXT NOT NULL DEFAULT '',
	bulk_amount_lbs REAL NOT NULL DEFAULT 0,

	inoculation_date TEXT NOT NULL DEFAULT '',
	spawn_start_date TEXT NOT NULL DEFAULT '',
	bulk_start_date TEXT NOT NULL DEFAULT '',
	fruiting_start_date TEXT NOT NULL DEFAULT '',
	harvest_date TEXT NOT NULL DEFAULT '',
	full_spawn_colonization_date TEXT NOT NULL DEFAULT '',
	full_bulk_colonization_date TEXT NOT NULL DEFAULT '',
	fruiting_pin_date TEXT NOT NULL DEFAULT '',
	harvest_completion_date TEXT NOT NULL DEFAULT '',

	inoculation_status TEXT NOT NULL DEFAULT '',
	spawn_colonization_status TEXT NOT NULL DEFAULT '',
	bulk_colonization_status TEXT NOT NULL DEFAULT '',
	fruiting_status TEXT NOT NULL DEFAULT '',
	harvest_status TEXT NOT NULL DEFAULT '',

	current_stage TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	total_cost REAL NOT NULL DEFAULT 0,
	stages TEXT,

	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_grows_user ON grows(user_id);
CREATE INDEX IF NOT EXISTS idx_grows_species ON grows(species);

CREATE TABLE IF NOT EXISTS flushes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	grow_id INTEGER NOT NULL REFERENCES grows(id) ON DELETE CASCADE,
	harvest_date TEXT NOT NULL DEFAULT '',
	wet_yield_grams REAL NOT NULL DEFAULT 0,
	dry_yield_grams REAL NOT NULL DEFAULT 0,
	potency_mg_per_g REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_flushes_grow ON flushes(grow_id);

CREATE TABLE IF NOT EXISTS teks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_by INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	species TEXT NOT NULL,
	variant TEXT NOT NULL DEFAULT '',
	tags TEXT,
	is_public INTEGER NOT NULL DEFAULT 0,
	stages TEXT,
	like_count INTEGER NOT NULL DEFAULT 0,
	view_count INTEGER NOT NULL DEFAULT 0,
	import_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_teks_public ON teks(is_public);
CREATE INDEX IF NOT EXISTS idx_teks_species ON teks(species);

CREATE TABLE IF NOT EXISTS iot_gateways (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	api_url TEXT NOT NULL,
	api_key TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_gateways_user ON iot_gateways(user_id);

CREATE TABLE IF NOT EXISTS iot_entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	gateway_id INTEGER NOT NULL REFERENCES iot_gateways(id) ON DELETE CASCADE,
	entity_name TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	friendly_name TEXT NOT NULL DEFAULT '',
	domain TEXT NOT NULL,
	device_class TEXT NOT NULL DEFAULT '',
	linked_grow_id INTEGER REFERENCES grows(id) ON DELETE SET NULL,
	linked_stage TEXT NOT NULL DEFAULT '',
	last_state TEXT NOT NULL DEFAULT '',
	last_updated TIMESTAMP,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_gateway ON iot_entities(gateway_id);
CREATE INDEX IF NOT EXISTS idx_entities_grow ON iot_entities(linked_grow_id);
`
