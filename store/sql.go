// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/danielhkuo/real-hero/geo"
	"github.com/danielhkuo/real-hero/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

// SQL is a Store over postgres or sqlite. Queries use $n placeholders,
// which both drivers accept.
type SQL struct {
	queries
	db *sql.DB
}

func NewSQL(db *sql.DB) *SQL {
	return &SQL{queries: queries{q: db}, db: db}
}

func (s *SQL) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Grant runs the balance update and the entry insert in one transaction.
func (s *SQL) Grant(ctx context.Context, g models.RewardGrant) (*models.RewardEntry, error) {
	var e *models.RewardEntry
	err := s.WithTx(ctx, func(tx Tx) error {
		var err error
		e, err = tx.Grant(ctx, g)
		return err
	})
	return e, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func emptyAsNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scanner interface {
	Scan(dest ...any) error
}

// Requests

const requestColumns = `id, requester_id, requester_uid, name, age, phone, email, blood_group, hospital,
	description, units, lat, lng, status, primary_donor, backup_donors, version, created_at, updated_at, expires_at`

func scanRequest(row scanner) (*models.Request, error) {
	var (
		r           models.Request
		requesterID sql.NullString
		lat, lng    sql.NullFloat64
		primary     sql.NullString
		backups     string
	)
	err := row.Scan(&r.ID, &requesterID, &r.RequesterUID, &r.Name, &r.Age, &r.Phone, &r.Email,
		&r.BloodGroup, &r.Hospital, &r.Description, &r.Units, &lat, &lng, &r.Status,
		&primary, &backups, &r.Version, &r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if requesterID.Valid {
		r.RequesterID = &requesterID.String
	}
	if lat.Valid && lng.Valid {
		r.Location = &models.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	if primary.Valid && primary.String != "" && primary.String != "null" {
		r.PrimaryDonor = &models.PrimaryDonor{}
		if err := json.Unmarshal([]byte(primary.String), r.PrimaryDonor); err != nil {
			return nil, fmt.Errorf("failed to decode primary donor of %s: %w", r.ID, err)
		}
	}
	if backups != "" {
		if err := json.Unmarshal([]byte(backups), &r.BackupDonors); err != nil {
			return nil, fmt.Errorf("failed to decode backup donors of %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func collectRequests(rows *sql.Rows) ([]*models.Request, error) {
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func encodeDonors(r *models.Request) (primary any, backups string, err error) {
	if r.PrimaryDonor != nil {
		b, err := json.Marshal(r.PrimaryDonor)
		if err != nil {
			return nil, "", err
		}
		primary = string(b)
	}
	list := r.BackupDonors
	if list == nil {
		list = []models.BackupDonor{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, "", err
	}
	return primary, string(b), nil
}

func locationArgs(p *models.GeoPoint) (lat, lng any) {
	if p == nil {
		return nil, nil
	}
	return p.Lat, p.Lng
}

func (s *queries) CreateRequest(ctx context.Context, r *models.Request) error {
	if r.Version == 0 {
		r.Version = 1
	}
	primary, backups, err := encodeDonors(r)
	if err != nil {
		return fmt.Errorf("failed to encode donors: %w", err)
	}
	lat, lng := locationArgs(r.Location)

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO blood_request (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, r.ID, nullString(r.RequesterID), r.RequesterUID, r.Name, r.Age, r.Phone, r.Email,
		r.BloodGroup, r.Hospital, r.Description, r.Units, lat, lng, r.Status,
		primary, backups, r.Version, r.CreatedAt, r.UpdatedAt, r.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (s *queries) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM blood_request WHERE id = $1`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	return r, nil
}

func (s *queries) UpdateRequest(ctx context.Context, r *models.Request) error {
	primary, backups, err := encodeDonors(r)
	if err != nil {
		return fmt.Errorf("failed to encode donors: %w", err)
	}
	lat, lng := locationArgs(r.Location)

	res, err := s.q.ExecContext(ctx, `
		UPDATE blood_request
		SET status = $1, primary_donor = $2, backup_donors = $3, lat = $4, lng = $5,
			units = $6, description = $7, updated_at = $8, version = version + 1
		WHERE id = $9 AND version = $10
	`, r.Status, primary, backups, lat, lng, r.Units, r.Description, r.UpdatedAt, r.ID, r.Version)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	r.Version++
	return nil
}

func (s *queries) DeleteRequest(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM blood_request WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *queries) ListRequestsByRequester(ctx context.Context, userID, uid string) ([]*models.Request, error) {
	var (
		conds []string
		args  []any
	)
	if userID != "" {
		args = append(args, userID)
		conds = append(conds, "requester_id = $"+strconv.Itoa(len(args)))
	}
	if uid != "" {
		args = append(args, uid)
		conds = append(conds, "requester_uid = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return nil, nil
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM blood_request
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY created_at DESC, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return collectRequests(rows)
}

func statusArgs(statuses []string) []any {
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}
	return args
}

func (s *queries) ListActiveRequests(ctx context.Context, statuses []string, limit int) ([]*models.Request, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := append(statusArgs(statuses), limit)
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM blood_request
		WHERE status IN (`+placeholders(1, len(statuses))+`)
		ORDER BY created_at DESC, id
		LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return collectRequests(rows)
}

func (s *queries) NearRequests(ctx context.Context, center models.GeoPoint, maxMeters float64, statuses []string, limit int) ([]*models.Request, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	box := geo.BoundingBox(center, maxMeters)
	args := append([]any{box.MinLat, box.MaxLat, box.MinLng, box.MaxLng}, statusArgs(statuses)...)

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM blood_request
		WHERE lat IS NOT NULL AND lng IS NOT NULL
			AND lat BETWEEN $1 AND $2 AND lng BETWEEN $3 AND $4
			AND status IN (`+placeholders(5, len(statuses))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby requests: %w", err)
	}
	all, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}

	out := slices.DeleteFunc(all, func(r *models.Request) bool {
		return geo.Distance(center, *r.Location) > maxMeters
	})
	slices.SortFunc(out, func(a, b *models.Request) int {
		return cmp.Compare(geo.Distance(center, *a.Location), geo.Distance(center, *b.Location))
	})
	return limitTo(out, limit), nil
}

// ListStalePrimaries filters on the decoded primary donor since the
// assignment is stored as JSON.
func (s *queries) ListStalePrimaries(ctx context.Context, cutoff time.Time) ([]*models.Request, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM blood_request
		WHERE status IN ($1, $2)
		ORDER BY created_at, id
	`, models.StatusPrimaryAssigned, models.StatusBackupAssigned)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned requests: %w", err)
	}
	all, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(r *models.Request) bool {
		return r.PrimaryDonor == nil || r.PrimaryDonor.Arrived || !r.PrimaryDonor.AcceptedAt.Before(cutoff)
	}), nil
}

func (s *queries) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Request, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM blood_request
		WHERE created_at < $1
		ORDER BY created_at, id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired requests: %w", err)
	}
	return collectRequests(rows)
}

// Donor responses

const responseColumns = `id, request_id, donor_id, role, status, reward_points, hospital, created_at, updated_at`

func scanResponse(row scanner) (*models.DonorResponse, error) {
	var dr models.DonorResponse
	err := row.Scan(&dr.ID, &dr.RequestID, &dr.DonorID, &dr.Role, &dr.Status,
		&dr.RewardPoints, &dr.Hospital, &dr.CreatedAt, &dr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &dr, nil
}

func collectResponses(rows *sql.Rows) ([]*models.DonorResponse, error) {
	defer rows.Close()

	var out []*models.DonorResponse
	for rows.Next() {
		dr, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dr)
	}
	return out, rows.Err()
}

func (s *queries) CreateResponse(ctx context.Context, dr *models.DonorResponse) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO donor_response (`+responseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, dr.ID, dr.RequestID, dr.DonorID, dr.Role, dr.Status, dr.RewardPoints, dr.Hospital, dr.CreatedAt, dr.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert donor response: %w", err)
	}
	return nil
}

func (s *queries) GetResponse(ctx context.Context, requestID, donorID string) (*models.DonorResponse, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+responseColumns+` FROM donor_response
		WHERE request_id = $1 AND donor_id = $2
	`, requestID, donorID)
	dr, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load donor response: %w", err)
	}
	return dr, nil
}

func (s *queries) UpdateResponse(ctx context.Context, dr *models.DonorResponse) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE donor_response
		SET role = $1, status = $2, reward_points = $3, hospital = $4, updated_at = $5
		WHERE request_id = $6 AND donor_id = $7
	`, dr.Role, dr.Status, dr.RewardPoints, dr.Hospital, dr.UpdatedAt, dr.RequestID, dr.DonorID)
	if err != nil {
		return fmt.Errorf("failed to update donor response: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *queries) ListResponsesByRequest(ctx context.Context, requestID string) ([]*models.DonorResponse, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+responseColumns+` FROM donor_response
		WHERE request_id = $1
		ORDER BY created_at, id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list donor responses: %w", err)
	}
	return collectResponses(rows)
}

func (s *queries) ListResponsesByDonor(ctx context.Context, donorID string) ([]*models.DonorResponse, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+responseColumns+` FROM donor_response
		WHERE donor_id = $1
		ORDER BY created_at DESC, id
	`, donorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list donor responses: %w", err)
	}
	return collectResponses(rows)
}

// Ledger

func (s *queries) Grant(ctx context.Context, g models.RewardGrant) (*models.RewardEntry, error) {
	donations := 0
	if g.CountsDonation {
		donations = 1
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE app_user
		SET coins = coins + $1, leaderboard_points = leaderboard_points + $2, donations_count = donations_count + $3
		WHERE id = $4
	`, g.Coins, g.Points, donations, g.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balances: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update balances: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	e := newEntry(g)
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO reward_entry (id, user_id, request_id, coins, leaderboard_points, category, patient_name, hospital, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.UserID, e.RequestID, e.Coins, e.LeaderboardPoints, e.Category, e.PatientName, e.Hospital, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reward entry: %w", err)
	}
	return e, nil
}

func (s *queries) ListRewards(ctx context.Context, userID string) ([]*models.RewardEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, request_id, coins, leaderboard_points, category, patient_name, hospital, created_at
		FROM reward_entry
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	defer rows.Close()

	var out []*models.RewardEntry
	for rows.Next() {
		var e models.RewardEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.RequestID, &e.Coins, &e.LeaderboardPoints,
			&e.Category, &e.PatientName, &e.Hospital, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *queries) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, coins, leaderboard_points
		FROM app_user
		ORDER BY leaderboard_points DESC, coins DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	defer rows.Close()

	out := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Coins, &e.LeaderboardPoints); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Users

const userColumns = `id, uid, name, email, phone, age, blood_group, available, lat, lng,
	coins, leaderboard_points, donations_count, created_at`

func scanUser(row scanner) (*models.User, error) {
	var (
		u        models.User
		uid      sql.NullString
		lat, lng sql.NullFloat64
	)
	err := row.Scan(&u.ID, &uid, &u.Name, &u.Email, &u.Phone, &u.Age, &u.BloodGroup, &u.Available,
		&lat, &lng, &u.Coins, &u.LeaderboardPoints, &u.DonationsCount, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.UID = uid.String
	if lat.Valid && lng.Valid {
		u.Location = &models.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &u, nil
}

func (s *queries) CreateUser(ctx context.Context, u *models.User) error {
	lat, lng := locationArgs(u.Location)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO app_user (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, u.ID, emptyAsNull(u.UID), u.Name, u.Email, u.Phone, u.Age, u.BloodGroup, u.Available,
		lat, lng, u.Coins, u.LeaderboardPoints, u.DonationsCount, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *queries) getUserBy(ctx context.Context, column, value string) (*models.User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_user WHERE `+column+` = $1`, value)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (s *queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUserBy(ctx, "id", id)
}

func (s *queries) GetUserByUID(ctx context.Context, uid string) (*models.User, error) {
	if uid == "" {
		return nil, ErrNotFound
	}
	return s.getUserBy(ctx, "uid", uid)
}

func (s *queries) NearbyAvailableUsers(ctx context.Context, center models.GeoPoint, maxMeters float64, limit int) ([]*models.User, error) {
	box := geo.BoundingBox(center, maxMeters)
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+userColumns+` FROM app_user
		WHERE available = $1 AND lat IS NOT NULL AND lng IS NOT NULL
			AND lat BETWEEN $2 AND $3 AND lng BETWEEN $4 AND $5
	`, true, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if geo.Distance(center, *u.Location) <= maxMeters {
			out = append(out, u)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *models.User) int {
		return cmp.Compare(geo.Distance(center, *a.Location), geo.Distance(center, *b.Location))
	})
	return limitTo(out, limit), nil
}

// Offers

const offerColumns = `id, request_id, donor_user_id, donor_name, donor_phone, donor_email, donor_age, token, units,
	response, status, responded_at, follow_up_at, follow_up_sent, follow_up_sent_at, follow_up_response,
	follow_up_responded_at, created_at`

func scanOffer(row scanner) (*models.Offer, error) {
	var (
		o                                    models.Offer
		donorUserID                          sql.NullString
		respondedAt, sentAt, followRespondAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.RequestID, &donorUserID, &o.Donor.Name, &o.Donor.Phone, &o.Donor.Email,
		&o.Donor.Age, &o.Token, &o.Units, &o.Response, &o.Status, &respondedAt, &o.FollowUpAt,
		&o.FollowUpSent, &sentAt, &o.FollowUpResponse, &followRespondAt, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if donorUserID.Valid {
		o.DonorUserID = &donorUserID.String
	}
	for _, nt := range []struct {
		src sql.NullTime
		dst **time.Time
	}{
		{respondedAt, &o.RespondedAt},
		{sentAt, &o.FollowUpSentAt},
		{followRespondAt, &o.FollowUpRespondedAt},
	} {
		if nt.src.Valid {
			t := nt.src.Time
			*nt.dst = &t
		}
	}
	return &o, nil
}

func (s *queries) CreateOffer(ctx context.Context, o *models.Offer) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO offer (`+offerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, o.ID, o.RequestID, nullString(o.DonorUserID), o.Donor.Name, o.Donor.Phone, o.Donor.Email,
		o.Donor.Age, o.Token, o.Units, o.Response, o.Status, nullTime(o.RespondedAt), o.FollowUpAt,
		o.FollowUpSent, nullTime(o.FollowUpSentAt), o.FollowUpResponse, nullTime(o.FollowUpRespondedAt), o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert offer: %w", err)
	}
	return nil
}

func (s *queries) getOfferBy(ctx context.Context, column, value string) (*models.Offer, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offer WHERE `+column+` = $1`, value)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	return o, nil
}

func (s *queries) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	return s.getOfferBy(ctx, "id", id)
}

func (s *queries) GetOfferByToken(ctx context.Context, token string) (*models.Offer, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.getOfferBy(ctx, "token", token)
}

func (s *queries) UpdateOffer(ctx context.Context, o *models.Offer) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE offer
		SET donor_user_id = $1, response = $2, status = $3, responded_at = $4, follow_up_sent = $5,
			follow_up_sent_at = $6, follow_up_response = $7, follow_up_responded_at = $8
		WHERE id = $9
	`, nullString(o.DonorUserID), o.Response, o.Status, nullTime(o.RespondedAt), o.FollowUpSent,
		nullTime(o.FollowUpSentAt), o.FollowUpResponse, nullTime(o.FollowUpRespondedAt), o.ID)
	if err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *queries) ListDueFollowUps(ctx context.Context, now time.Time, limit int) ([]*models.Offer, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+offerColumns+` FROM offer
		WHERE follow_up_sent = $1 AND follow_up_at <= $2 AND follow_up_response = '' AND response <> $3
		ORDER BY follow_up_at, id
		LIMIT $4
	`, false, now, models.AnswerNo, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due follow-ups: %w", err)
	}
	defer rows.Close()

	var out []*models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

var (
	_ Store = (*SQL)(nil)
	_ Tx    = (*queries)(nil)
)
