// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danielhkuo/real-hero/geo"
	"github.com/danielhkuo/real-hero/models"
)

// Memory is an in-process Store. A transaction works on a copy of the
// state and swaps it in on success, so a failed fn leaves nothing behind.
// Stored values are never mutated in place; every write stores a fresh copy.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	requests  map[string]*models.Request
	responses map[string]*models.DonorResponse // keyed by requestID/donorID
	entries   []*models.RewardEntry
	users     map[string]*models.User
	offers    map[string]*models.Offer
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		requests:  make(map[string]*models.Request),
		responses: make(map[string]*models.DonorResponse),
		users:     make(map[string]*models.User),
		offers:    make(map[string]*models.Offer),
	}}
}

func (s *memState) clone() *memState {
	return &memState{
		requests:  maps.Clone(s.requests),
		responses: maps.Clone(s.responses),
		entries:   slices.Clone(s.entries),
		users:     maps.Clone(s.users),
		offers:    maps.Clone(s.offers),
	}
}

// WithTx serializes all transactions on the store.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := m.state.clone()
	if err := fn(view); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = view
	return nil
}

func (m *Memory) read(fn func(s *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

func (m *Memory) write(ctx context.Context, fn func(tx Tx) error) error {
	return m.WithTx(ctx, fn)
}

// Requests

func (s *memState) CreateRequest(_ context.Context, r *models.Request) error {
	if _, ok := s.requests[r.ID]; ok {
		return ErrDuplicate
	}
	if r.Version == 0 {
		r.Version = 1
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

func (s *memState) GetRequest(_ context.Context, id string) (*models.Request, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *memState) UpdateRequest(_ context.Context, r *models.Request) error {
	cur, ok := s.requests[r.ID]
	if !ok || cur.Version != r.Version {
		return ErrVersionConflict
	}
	r.Version++
	s.requests[r.ID] = r.Clone()
	return nil
}

func (s *memState) DeleteRequest(_ context.Context, id string) error {
	if _, ok := s.requests[id]; !ok {
		return ErrNotFound
	}
	delete(s.requests, id)
	return nil
}

func (s *memState) filterRequests(keep func(r *models.Request) bool) []*models.Request {
	var out []*models.Request
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

func newestFirst(a, b *models.Request) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func limitTo[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func (s *memState) ListRequestsByRequester(_ context.Context, userID, uid string) ([]*models.Request, error) {
	out := s.filterRequests(func(r *models.Request) bool { return r.IsRequester(userID, uid) })
	slices.SortFunc(out, newestFirst)
	return out, nil
}

func (s *memState) ListActiveRequests(_ context.Context, statuses []string, limit int) ([]*models.Request, error) {
	out := s.filterRequests(func(r *models.Request) bool { return slices.Contains(statuses, r.Status) })
	slices.SortFunc(out, newestFirst)
	return limitTo(out, limit), nil
}

func (s *memState) NearRequests(_ context.Context, center models.GeoPoint, maxMeters float64, statuses []string, limit int) ([]*models.Request, error) {
	out := s.filterRequests(func(r *models.Request) bool {
		return r.Location != nil && slices.Contains(statuses, r.Status) && geo.Distance(center, *r.Location) <= maxMeters
	})
	slices.SortFunc(out, func(a, b *models.Request) int {
		return cmp.Compare(geo.Distance(center, *a.Location), geo.Distance(center, *b.Location))
	})
	return limitTo(out, limit), nil
}

func (s *memState) ListStalePrimaries(_ context.Context, cutoff time.Time) ([]*models.Request, error) {
	out := s.filterRequests(func(r *models.Request) bool {
		assigned := r.Status == models.StatusPrimaryAssigned || r.Status == models.StatusBackupAssigned
		return assigned && r.PrimaryDonor != nil && !r.PrimaryDonor.Arrived && r.PrimaryDonor.AcceptedAt.Before(cutoff)
	})
	slices.SortFunc(out, func(a, b *models.Request) int { return -newestFirst(a, b) })
	return out, nil
}

func (s *memState) ListCreatedBefore(_ context.Context, cutoff time.Time) ([]*models.Request, error) {
	out := s.filterRequests(func(r *models.Request) bool { return r.CreatedAt.Before(cutoff) })
	slices.SortFunc(out, func(a, b *models.Request) int { return -newestFirst(a, b) })
	return out, nil
}

// Donor responses

func responseKey(requestID, donorID string) string {
	return requestID + "/" + donorID
}

func (s *memState) CreateResponse(_ context.Context, dr *models.DonorResponse) error {
	key := responseKey(dr.RequestID, dr.DonorID)
	if _, ok := s.responses[key]; ok {
		return ErrDuplicate
	}
	c := *dr
	s.responses[key] = &c
	return nil
}

func (s *memState) GetResponse(_ context.Context, requestID, donorID string) (*models.DonorResponse, error) {
	dr, ok := s.responses[responseKey(requestID, donorID)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *dr
	return &c, nil
}

func (s *memState) UpdateResponse(_ context.Context, dr *models.DonorResponse) error {
	key := responseKey(dr.RequestID, dr.DonorID)
	if _, ok := s.responses[key]; !ok {
		return ErrNotFound
	}
	c := *dr
	s.responses[key] = &c
	return nil
}

func (s *memState) filterResponses(keep func(dr *models.DonorResponse) bool) []*models.DonorResponse {
	var out []*models.DonorResponse
	for _, dr := range s.responses {
		if keep(dr) {
			c := *dr
			out = append(out, &c)
		}
	}
	return out
}

func (s *memState) ListResponsesByRequest(_ context.Context, requestID string) ([]*models.DonorResponse, error) {
	out := s.filterResponses(func(dr *models.DonorResponse) bool { return dr.RequestID == requestID })
	slices.SortFunc(out, func(a, b *models.DonorResponse) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *memState) ListResponsesByDonor(_ context.Context, donorID string) ([]*models.DonorResponse, error) {
	out := s.filterResponses(func(dr *models.DonorResponse) bool { return dr.DonorID == donorID })
	slices.SortFunc(out, func(a, b *models.DonorResponse) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Ledger

func (s *memState) Grant(_ context.Context, g models.RewardGrant) (*models.RewardEntry, error) {
	u, ok := s.users[g.UserID]
	if !ok {
		return nil, ErrNotFound
	}
	nu := cloneUser(u)
	nu.Coins += g.Coins
	nu.LeaderboardPoints += g.Points
	if g.CountsDonation {
		nu.DonationsCount++
	}
	s.users[g.UserID] = nu

	e := newEntry(g)
	s.entries = append(s.entries, e)
	c := *e
	return &c, nil
}

func newEntry(g models.RewardGrant) *models.RewardEntry {
	return &models.RewardEntry{
		ID:                ulid.Make().String(),
		UserID:            g.UserID,
		RequestID:         g.RequestID,
		Coins:             g.Coins,
		LeaderboardPoints: g.Points,
		Category:          g.Category,
		PatientName:       g.PatientName,
		Hospital:          g.Hospital,
		CreatedAt:         g.GrantedAt,
	}
}

func (s *memState) ListRewards(_ context.Context, userID string) ([]*models.RewardEntry, error) {
	var out []*models.RewardEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			c := *s.entries[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memState) Leaderboard(_ context.Context, limit int) ([]models.LeaderboardEntry, error) {
	out := make([]models.LeaderboardEntry, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, models.LeaderboardEntry{
			UserID:            u.ID,
			Name:              u.Name,
			Coins:             u.Coins,
			LeaderboardPoints: u.LeaderboardPoints,
		})
	}
	slices.SortFunc(out, func(a, b models.LeaderboardEntry) int {
		if c := cmp.Compare(b.LeaderboardPoints, a.LeaderboardPoints); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Coins, a.Coins); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return limitTo(out, limit), nil
}

// Users

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.Location != nil {
		loc := *u.Location
		c.Location = &loc
	}
	return &c
}

func (s *memState) CreateUser(_ context.Context, u *models.User) error {
	if _, ok := s.users[u.ID]; ok {
		return ErrDuplicate
	}
	if u.UID != "" {
		for _, other := range s.users {
			if other.UID == u.UID {
				return ErrDuplicate
			}
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *memState) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *memState) GetUserByUID(_ context.Context, uid string) (*models.User, error) {
	for _, u := range s.users {
		if uid != "" && u.UID == uid {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) NearbyAvailableUsers(_ context.Context, center models.GeoPoint, maxMeters float64, limit int) ([]*models.User, error) {
	var out []*models.User
	for _, u := range s.users {
		if u.Available && u.Location != nil && geo.Distance(center, *u.Location) <= maxMeters {
			out = append(out, cloneUser(u))
		}
	}
	slices.SortFunc(out, func(a, b *models.User) int {
		if c := cmp.Compare(geo.Distance(center, *a.Location), geo.Distance(center, *b.Location)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return limitTo(out, limit), nil
}

// Offers

func cloneOffer(o *models.Offer) *models.Offer {
	c := *o
	if o.DonorUserID != nil {
		id := *o.DonorUserID
		c.DonorUserID = &id
	}
	for _, tp := range []**time.Time{&c.RespondedAt, &c.FollowUpSentAt, &c.FollowUpRespondedAt} {
		if *tp != nil {
			t := **tp
			*tp = &t
		}
	}
	return &c
}

func (s *memState) CreateOffer(_ context.Context, o *models.Offer) error {
	if _, ok := s.offers[o.ID]; ok {
		return ErrDuplicate
	}
	for _, other := range s.offers {
		if other.Token == o.Token {
			return ErrDuplicate
		}
	}
	s.offers[o.ID] = cloneOffer(o)
	return nil
}

func (s *memState) GetOffer(_ context.Context, id string) (*models.Offer, error) {
	o, ok := s.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOffer(o), nil
}

func (s *memState) GetOfferByToken(_ context.Context, token string) (*models.Offer, error) {
	for _, o := range s.offers {
		if token != "" && o.Token == token {
			return cloneOffer(o), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) UpdateOffer(_ context.Context, o *models.Offer) error {
	if _, ok := s.offers[o.ID]; !ok {
		return ErrNotFound
	}
	s.offers[o.ID] = cloneOffer(o)
	return nil
}

func (s *memState) ListDueFollowUps(_ context.Context, now time.Time, limit int) ([]*models.Offer, error) {
	var out []*models.Offer
	for _, o := range s.offers {
		if followUpDue(o, now) {
			out = append(out, cloneOffer(o))
		}
	}
	slices.SortFunc(out, func(a, b *models.Offer) int {
		if c := a.FollowUpAt.Compare(b.FollowUpAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return limitTo(out, limit), nil
}

// followUpDue skips offers the donor declined or already answered.
func followUpDue(o *models.Offer, now time.Time) bool {
	return !o.FollowUpSent && !o.FollowUpAt.After(now) &&
		o.FollowUpResponse == "" && o.Response != models.AnswerNo
}

// Locked wrappers for use outside WithTx.

func (m *Memory) CreateRequest(ctx context.Context, r *models.Request) error {
	return m.write(ctx, func(tx Tx) error { return tx.CreateRequest(ctx, r) })
}

func (m *Memory) GetRequest(ctx context.Context, id string) (r *models.Request, err error) {
	m.read(func(s *memState) { r, err = s.GetRequest(ctx, id) })
	return
}

func (m *Memory) UpdateRequest(ctx context.Context, r *models.Request) error {
	return m.write(ctx, func(tx Tx) error { return tx.UpdateRequest(ctx, r) })
}

func (m *Memory) DeleteRequest(ctx context.Context, id string) error {
	return m.write(ctx, func(tx Tx) error { return tx.DeleteRequest(ctx, id) })
}

func (m *Memory) ListRequestsByRequester(ctx context.Context, userID, uid string) (out []*models.Request, err error) {
	m.read(func(s *memState) { out, err = s.ListRequestsByRequester(ctx, userID, uid) })
	return
}

func (m *Memory) ListActiveRequests(ctx context.Context, statuses []string, limit int) (out []*models.Request, err error) {
	m.read(func(s *memState) { out, err = s.ListActiveRequests(ctx, statuses, limit) })
	return
}

func (m *Memory) NearRequests(ctx context.Context, center models.GeoPoint, maxMeters float64, statuses []string, limit int) (out []*models.Request, err error) {
	m.read(func(s *memState) { out, err = s.NearRequests(ctx, center, maxMeters, statuses, limit) })
	return
}

func (m *Memory) ListStalePrimaries(ctx context.Context, cutoff time.Time) (out []*models.Request, err error) {
	m.read(func(s *memState) { out, err = s.ListStalePrimaries(ctx, cutoff) })
	return
}

func (m *Memory) ListCreatedBefore(ctx context.Context, cutoff time.Time) (out []*models.Request, err error) {
	m.read(func(s *memState) { out, err = s.ListCreatedBefore(ctx, cutoff) })
	return
}

func (m *Memory) CreateResponse(ctx context.Context, dr *models.DonorResponse) error {
	return m.write(ctx, func(tx Tx) error { return tx.CreateResponse(ctx, dr) })
}

func (m *Memory) GetResponse(ctx context.Context, requestID, donorID string) (dr *models.DonorResponse, err error) {
	m.read(func(s *memState) { dr, err = s.GetResponse(ctx, requestID, donorID) })
	return
}

func (m *Memory) UpdateResponse(ctx context.Context, dr *models.DonorResponse) error {
	return m.write(ctx, func(tx Tx) error { return tx.UpdateResponse(ctx, dr) })
}

func (m *Memory) ListResponsesByRequest(ctx context.Context, requestID string) (out []*models.DonorResponse, err error) {
	m.read(func(s *memState) { out, err = s.ListResponsesByRequest(ctx, requestID) })
	return
}

func (m *Memory) ListResponsesByDonor(ctx context.Context, donorID string) (out []*models.DonorResponse, err error) {
	m.read(func(s *memState) { out, err = s.ListResponsesByDonor(ctx, donorID) })
	return
}

func (m *Memory) Grant(ctx context.Context, g models.RewardGrant) (e *models.RewardEntry, err error) {
	err = m.write(ctx, func(tx Tx) error {
		e, err = tx.Grant(ctx, g)
		return err
	})
	return
}

func (m *Memory) ListRewards(ctx context.Context, userID string) (out []*models.RewardEntry, err error) {
	m.read(func(s *memState) { out, err = s.ListRewards(ctx, userID) })
	return
}

func (m *Memory) Leaderboard(ctx context.Context, limit int) (out []models.LeaderboardEntry, err error) {
	m.read(func(s *memState) { out, err = s.Leaderboard(ctx, limit) })
	return
}

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	return m.write(ctx, func(tx Tx) error { return tx.CreateUser(ctx, u) })
}

func (m *Memory) GetUser(ctx context.Context, id string) (u *models.User, err error) {
	m.read(func(s *memState) { u, err = s.GetUser(ctx, id) })
	return
}

func (m *Memory) GetUserByUID(ctx context.Context, uid string) (u *models.User, err error) {
	m.read(func(s *memState) { u, err = s.GetUserByUID(ctx, uid) })
	return
}

func (m *Memory) NearbyAvailableUsers(ctx context.Context, center models.GeoPoint, maxMeters float64, limit int) (out []*models.User, err error) {
	m.read(func(s *memState) { out, err = s.NearbyAvailableUsers(ctx, center, maxMeters, limit) })
	return
}

func (m *Memory) CreateOffer(ctx context.Context, o *models.Offer) error {
	return m.write(ctx, func(tx Tx) error { return tx.CreateOffer(ctx, o) })
}

func (m *Memory) GetOffer(ctx context.Context, id string) (o *models.Offer, err error) {
	m.read(func(s *memState) { o, err = s.GetOffer(ctx, id) })
	return
}

func (m *Memory) GetOfferByToken(ctx context.Context, token string) (o *models.Offer, err error) {
	m.read(func(s *memState) { o, err = s.GetOfferByToken(ctx, token) })
	return
}

func (m *Memory) UpdateOffer(ctx context.Context, o *models.Offer) error {
	return m.write(ctx, func(tx Tx) error { return tx.UpdateOffer(ctx, o) })
}

func (m *Memory) ListDueFollowUps(ctx context.Context, now time.Time, limit int) (out []*models.Offer, err error) {
	m.read(func(s *memState) { out, err = s.ListDueFollowUps(ctx, now, limit) })
	return
}

var (
	_ Store = (*Memory)(nil)
	_ Tx    = (*memState)(nil)
)
