// Package postgres provides a PostgreSQL implementation of the storage
// interfaces.
package postgres

// Schema contains the SQL statements to create the application tables for
// PostgreSQL. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS grows (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    species TEXT NOT NULL,
    variant TEXT NOT NULL DEFAULT '',
    tags JSONB,
    location TEXT NOT NULL DEFAULT '',

    spawn_type TEXT NOT NULL DEFAULT '',
    spawn_amount_lbs DOUBLE PRECISION NOT NULL DEFAULT 0,
    bulk_type TEXT NOT NULL DEFAULT '',
    bulk_amount_lbs DOUBLE PRECISION NOT NULL DEFAULT 0,

    -- Stage start dates, local calendar dates as YYYY-MM-DD text.
    inoculation_date TEXT NOT NULL DEFAULT '',
    spawn_start_date TEXT NOT NULL DEFAULT '',
    bulk_start_date TEXT NOT NULL DEFAULT '',
    fruiting_start_date TEXT NOT NULL DEFAULT '',
    harvest_date TEXT NOT NULL DEFAULT '',

    -- Milestone dates.
    full_spawn_colonization_date TEXT NOT NULL DEFAULT '',
    full_bulk_colonization_date TEXT NOT NULL DEFAULT '',
    fruiting_pin_date TEXT NOT NULL DEFAULT '',
    harvest_completion_date TEXT NOT NULL DEFAULT '',

    -- Per-stage health statuses.
    inoculation_status TEXT NOT NULL DEFAULT '',
    spawn_colonization_status TEXT NOT NULL DEFAULT '',
    bulk_colonization_status TEXT NOT NULL DEFAULT '',
    fruiting_status TEXT NOT NULL DEFAULT '',
    harvest_status TEXT NOT NULL DEFAULT '',

    current_stage TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    total_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
    stages JSONB,

    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_grows_user ON grows(user_id);
CREATE INDEX IF NOT EXISTS idx_grows_user_species ON grows(user_id, species);
CREATE INDEX IF NOT EXISTS idx_grows_user_status ON grows(user_id, status);

CREATE TABLE IF NOT EXISTS flushes (
    id BIGSERIAL PRIMARY KEY,
    grow_id BIGINT NOT NULL REFERENCES grows(id) ON DELETE CASCADE,
    harvest_date TEXT NOT NULL DEFAULT '',
    wet_yield_grams DOUBLE PRECISION NOT NULL DEFAULT 0,
    dry_yield_grams DOUBLE PRECISION NOT NULL DEFAULT 0,
    potency_mg_per_g DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_flushes_grow ON flushes(grow_id);

CREATE TABLE IF NOT EXISTS teks (
    id BIGSERIAL PRIMARY KEY,
    created_by BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    species TEXT NOT NULL,
    variant TEXT NOT NULL DEFAULT '',
    tags JSONB,
    is_public BOOLEAN NOT NULL DEFAULT FALSE,
    stages JSONB,
    like_count BIGINT NOT NULL DEFAULT 0,
    view_count BIGINT NOT NULL DEFAULT 0,
    import_count BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_teks_public ON teks(is_public);
CREATE INDEX IF NOT EXISTS idx_teks_species ON teks(species);

CREATE TABLE IF NOT EXISTS iot_gateways (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    api_url TEXT NOT NULL,
    api_key TEXT NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_gateways_user ON iot_gateways(user_id);

CREATE TABLE IF NOT EXISTS iot_entities (
    id BIGSERIAL PRIMARY KEY,
    gateway_id BIGINT NOT NULL REFERENCES iot_gateways(id) ON DELETE CASCADE,
    entity_name TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT '',
    friendly_name TEXT NOT NULL DEFAULT '',
    domain TEXT NOT NULL,
    device_class TEXT NOT NULL DEFAULT '',
    linked_grow_id BIGINT REFERENCES grows(id) ON DELETE SET NULL,
    linked_stage TEXT NOT NULL DEFAULT '',
    last_state TEXT NOT NULL DEFAULT '',
    last_updated TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_entities_gateway ON iot_entities(gateway_id);
CREATE INDEX IF NOT EXISTS idx_entities_grow ON iot_entities(linked_grow_id);
`
