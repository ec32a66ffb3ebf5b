// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
// The DDL is shared by postgres and sqlite.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Users (identity is resolved externally; uid is the provider's subject)
CREATE TABLE IF NOT EXISTS app_user (
    id TEXT PRIMARY KEY,
    uid TEXT UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    age INTEGER NOT NULL DEFAULT 0,
    blood_group TEXT NOT NULL DEFAULT '',
    available BOOLEAN NOT NULL DEFAULT TRUE,
    lat DOUBLE PRECISION,
    lng DOUBLE PRECISION,
    coins INTEGER NOT NULL DEFAULT 0,
    leaderboard_points INTEGER NOT NULL DEFAULT 0,
    donations_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_app_user_points ON app_user(leaderboard_points, coins);

-- Blood requests (donor assignment kept as JSON on the row so one
-- versioned UPDATE covers status and donors together)
CREATE TABLE IF NOT EXISTS blood_request (
    id TEXT PRIMARY KEY,
    requester_id TEXT,
    requester_uid TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    age INTEGER NOT NULL DEFAULT 0,
    phone TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    blood_group TEXT NOT NULL,
    hospital TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    units INTEGER NOT NULL DEFAULT 1,
    lat DOUBLE PRECISION,
    lng DOUBLE PRECISION,
    status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'primary_assigned', 'backup_assigned', 'pending_verification', 'fulfilled', 'failed', 'cancelled')),
    primary_donor TEXT,
    backup_donors TEXT NOT NULL DEFAULT '[]',
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blood_request_status ON blood_request(status);
CREATE INDEX IF NOT EXISTS idx_blood_request_requester ON blood_request(requester_id);
CREATE INDEX IF NOT EXISTS idx_blood_request_created ON blood_request(created_at);

-- Donor responses outlive their request (no foreign key)
CREATE TABLE IF NOT EXISTS donor_response (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    donor_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('primary', 'backup')),
    status TEXT NOT NULL CHECK (status IN ('active', 'promoted', 'completed', 'failed', 'cancelled')),
    reward_points INTEGER NOT NULL DEFAULT 0,
    hospital TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (request_id, donor_id)
);

CREATE INDEX IF NOT EXISTS idx_donor_response_donor ON donor_response(donor_id);

-- Reward ledger (append-only)
CREATE TABLE IF NOT EXISTS reward_entry (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES app_user(id),
    request_id TEXT NOT NULL,
    coins INTEGER NOT NULL,
    leaderboard_points INTEGER NOT NULL,
    category TEXT NOT NULL,
    patient_name TEXT NOT NULL DEFAULT '',
    hospital TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reward_entry_user ON reward_entry(user_id);

-- Offers made to donors outside the app
CREATE TABLE IF NOT EXISTS offer (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    donor_user_id TEXT,
    donor_name TEXT NOT NULL DEFAULT '',
    donor_phone TEXT NOT NULL,
    donor_email TEXT NOT NULL DEFAULT '',
    donor_age INTEGER NOT NULL DEFAULT 0,
    token TEXT NOT NULL UNIQUE,
    units INTEGER NOT NULL DEFAULT 1,
    response TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'declined')),
    responded_at TIMESTAMP,
    follow_up_at TIMESTAMP NOT NULL,
    follow_up_sent BOOLEAN NOT NULL DEFAULT FALSE,
    follow_up_sent_at TIMESTAMP,
    follow_up_response TEXT NOT NULL DEFAULT '',
    follow_up_responded_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_offer_follow_up ON offer(follow_up_sent, follow_up_at);
`
