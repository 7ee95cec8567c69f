package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            SERIAL PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	nickname      TEXT,
	avatar_url    TEXT,
	gender        TEXT,
	age           INTEGER,
	location      TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS hobbies (
	id          SERIAL PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT
);

CREATE TABLE IF NOT EXISTS user_hobbies (
	user_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	hobby_id INTEGER NOT NULL REFERENCES hobbies(id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, hobby_id)
);

CREATE TABLE IF NOT EXISTS user_friends (
	user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	friend_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, friend_id)
);

CREATE TABLE IF NOT EXISTS chat_rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id        SERIAL PRIMARY KEY,
	room_id   TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	content   TEXT NOT NULL,
	image_url TEXT,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS chat_messages_room_ts_idx ON chat_messages (room_id, timestamp);

CREATE TABLE IF NOT EXISTS user_status (
	id              SERIAL PRIMARY KEY,
	user_id         INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	status          TEXT NOT NULL DEFAULT 'offline',
	server_instance TEXT,
	last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	connected_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS gps_locations (
	id        SERIAL PRIMARY KEY,
	user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS gps_locations_user_ts_idx ON gps_locations (user_id, timestamp);

CREATE TABLE IF NOT EXISTS gps_routes (
	id          SERIAL PRIMARY KEY,
	user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	route_date  DATE NOT NULL,
	points      JSONB NOT NULL,
	point_count INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, route_date)
);
`
