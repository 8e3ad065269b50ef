package db

// schema is idempotent and runs on every start. gen_random_uuid() is
// built in from Postgres 13 on.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         bigserial    PRIMARY KEY,
	username   varchar(50)  NOT NULL UNIQUE,
	password   varchar(255) NOT NULL,
	is_admin   boolean      NOT NULL DEFAULT false,
	is_online  boolean      NOT NULL DEFAULT false,
	last_seen  timestamptz  DEFAULT now(),
	created_at timestamptz  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS group_messages (
	id         uuid        PRIMARY KEY DEFAULT gen_random_uuid(),
	sender     varchar(50) NOT NULL REFERENCES users (username),
	content    text,
	image_url  text,
	timestamp  timestamptz NOT NULL DEFAULT now(),
	is_edited  boolean     NOT NULL DEFAULT false,
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_group_messages_timestamp
	ON group_messages (timestamp DESC);

CREATE TABLE IF NOT EXISTS direct_messages (
	id         uuid        PRIMARY KEY DEFAULT gen_random_uuid(),
	from_user  varchar(50) NOT NULL REFERENCES users (username),
	to_user    varchar(50) NOT NULL REFERENCES users (username),
	content    text,
	image_url  text,
	timestamp  timestamptz NOT NULL DEFAULT now(),
	is_edited  boolean     NOT NULL DEFAULT false,
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_direct_messages_pair
	ON direct_messages (LEAST(from_user, to_user), GREATEST(from_user, to_user), timestamp DESC);
`
