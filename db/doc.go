// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database schema creation.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
The same DDL runs on postgres (lib/pq) and sqlite (modernc.org/sqlite).

# Tables

  - app_user: Users with coin, point and donation balances
  - blood_request: Requests; primary_donor and backup_donors are JSON text
  - donor_response: One row per (request_id, donor_id)
  - reward_entry: Append-only reward ledger
  - offer: Out-of-band donor offers and their follow-up state

# Relationships

	app_user 1──* reward_entry
	blood_request 1──* donor_response (soft; responses survive deletion)
	blood_request 1──* offer          (soft)

# Concurrency

blood_request.version is bumped on every update. Writers update with
WHERE version = $n and treat zero affected rows as a lost race.
*/
package db
