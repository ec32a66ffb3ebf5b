package models

import "time"

// Request status constants
const (
	StatusOpen                = "open"
	StatusPrimaryAssigned     = "primary_assigned"
	StatusBackupAssigned      = "backup_assigned"
	StatusPendingVerification = "pending_verification"
	StatusFulfilled           = "fulfilled"
	StatusFailed              = "failed"
	StatusCancelled           = "cancelled"
)

// Donor role constants
const (
	RolePrimary = "primary"
	RoleBackup  = "backup"
)

// Donor response status constants
const (
	ResponseActive    = "active"
	ResponsePromoted  = "promoted"
	ResponseCompleted = "completed"
	ResponseFailed    = "failed"
	ResponseCancelled = "cancelled"
)

// Reward ledger categories
const (
	CategoryDonationCompleted = "donation_completed"
	CategoryRequestFulfilled  = "request_fulfilled"
	CategoryBackupArrival     = "backup_arrival"
	CategoryOfferFollowUp     = "offer_followup"
)

// Offer status constants
const (
	OfferPending  = "pending"
	OfferAccepted = "accepted"
	OfferDeclined = "declined"
)

// Yes/no answers used by verification, interest and offer links
const (
	AnswerYes = "yes"
	AnswerNo  = "no"
)

// RequestTTL is how long a request lives before the expiry sweep removes it.
const RequestTTL = 7 * 24 * time.Hour

// ActiveStatuses are the statuses shown to prospective donors.
var ActiveStatuses = []string{StatusOpen, StatusPrimaryAssigned, StatusBackupAssigned}

// Domain types

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type PrimaryDonor struct {
	DonorID     string     `json:"donor_id"`
	AcceptedAt  time.Time  `json:"accepted_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	Arrived     bool       `json:"arrived"`
}

type BackupDonor struct {
	DonorID         string    `json:"donor_id"`
	AcceptedAt      time.Time `json:"accepted_at"`
	Promoted        bool      `json:"promoted"`
	ReachedHospital bool      `json:"reached_hospital"`
	GPSVerified     bool      `json:"gps_verified"`
}

type Request struct {
	ID           string        `json:"id"`
	RequesterID  *string       `json:"requester_id,omitempty"`
	RequesterUID string        `json:"requester_uid,omitempty"` // legacy loose identifier
	Name         string        `json:"name"`
	Age          int           `json:"age,omitempty"`
	Phone        string        `json:"phone"`
	Email        string        `json:"email,omitempty"`
	BloodGroup   string        `json:"blood_group"`
	Hospital     string        `json:"hospital"`
	Description  string        `json:"description,omitempty"`
	Units        int           `json:"units"`
	Location     *GeoPoint     `json:"location,omitempty"`
	Status       string        `json:"status"`
	PrimaryDonor *PrimaryDonor `json:"primary_donor,omitempty"`
	BackupDonors []BackupDonor `json:"backup_donors"`
	Version      int           `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// IsTerminal reports whether no further donor action may change the request.
func (r *Request) IsTerminal() bool {
	switch r.Status {
	case StatusFulfilled, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsRequester matches a user against the requester reference, falling back
// to the legacy uid for requests created before requester ids existed.
func (r *Request) IsRequester(userID, uid string) bool {
	if r.RequesterID != nil && userID != "" && *r.RequesterID == userID {
		return true
	}
	return r.RequesterUID != "" && uid != "" && r.RequesterUID == uid
}

// BackupIndex returns the position of donorID in BackupDonors, or -1.
func (r *Request) BackupIndex(donorID string) int {
	for i, b := range r.BackupDonors {
		if b.DonorID == donorID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	c := *r
	if r.RequesterID != nil {
		id := *r.RequesterID
		c.RequesterID = &id
	}
	if r.Location != nil {
		loc := *r.Location
		c.Location = &loc
	}
	if r.PrimaryDonor != nil {
		p := *r.PrimaryDonor
		if p.ConfirmedAt != nil {
			t := *p.ConfirmedAt
			p.ConfirmedAt = &t
		}
		c.PrimaryDonor = &p
	}
	c.BackupDonors = append([]BackupDonor(nil), r.BackupDonors...)
	return &c
}

type DonorResponse struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	DonorID      string    `json:"donor_id"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	RewardPoints int       `json:"reward_points"`
	Hospital     string    `json:"hospital"` // survives request deletion
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DonationRecord is a donor's response joined with the live request, when
// the request still exists.
type DonationRecord struct {
	DonorResponse
	Request *Request `json:"request,omitempty"`
}

type User struct {
	ID                string    `json:"id"`
	UID               string    `json:"uid"`
	Name              string    `json:"name"`
	Email             string    `json:"email,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	Age               int       `json:"age,omitempty"`
	BloodGroup        string    `json:"blood_group,omitempty"`
	Available         bool      `json:"available"`
	Location          *GeoPoint `json:"location,omitempty"`
	Coins             int       `json:"coins"`
	LeaderboardPoints int       `json:"leaderboard_points"`
	DonationsCount    int       `json:"donations_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// RewardGrant is the input to a ledger grant.
type RewardGrant struct {
	UserID         string
	RequestID      string
	Coins          int
	Points         int
	Category       string
	PatientName    string
	Hospital       string
	CountsDonation bool
	GrantedAt      time.Time
}

type RewardEntry struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	RequestID         string    `json:"request_id"`
	Coins             int       `json:"coins"`
	LeaderboardPoints int       `json:"leaderboard_points"`
	Category          string    `json:"category"`
	PatientName       string    `json:"patient_name"`
	Hospital          string    `json:"hospital"`
	CreatedAt         time.Time `json:"created_at"`
}

type LeaderboardEntry struct {
	UserID            string `json:"user_id"`
	Name              string `json:"name"`
	Coins             int    `json:"coins"`
	LeaderboardPoints int    `json:"leaderboard_points"`
}

// DonorSnapshot is donor contact info captured when an offer is made.
type DonorSnapshot struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Age   int    `json:"age,omitempty"`
}

// Merge prefers the live user record field by field and falls back to the
// snapshot where the live record is empty or missing.
func (s DonorSnapshot) Merge(live *User) DonorSnapshot {
	if live == nil {
		return s
	}
	out := s
	if live.Name != "" {
		out.Name = live.Name
	}
	if live.Phone != "" {
		out.Phone = live.Phone
	}
	if live.Email != "" {
		out.Email = live.Email
	}
	if live.Age != 0 {
		out.Age = live.Age
	}
	return out
}

type Offer struct {
	ID                  string        `json:"id"`
	RequestID           string        `json:"request_id"`
	DonorUserID         *string       `json:"donor_user_id,omitempty"`
	Donor               DonorSnapshot `json:"donor"`
	Token               string        `json:"-"`
	Units               int           `json:"units"`
	Response            string        `json:"response,omitempty"` // "", yes, no
	Status              string        `json:"status"`
	RespondedAt         *time.Time    `json:"responded_at,omitempty"`
	FollowUpAt          time.Time     `json:"follow_up_at"`
	FollowUpSent        bool          `json:"follow_up_sent"`
	FollowUpSentAt      *time.Time    `json:"follow_up_sent_at,omitempty"`
	FollowUpResponse    string        `json:"follow_up_response,omitempty"`
	FollowUpRespondedAt *time.Time    `json:"follow_up_responded_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Notification is a best-effort message handed to the external delivery worker.
type Notification struct {
	UserID   string            `json:"user_id,omitempty"`
	Email    string            `json:"email,omitempty"`
	Template string            `json:"template"`
	Payload  map[string]string `json:"payload"`
}

// Request types

type CreateRequestRequest struct {
	Name        string    `json:"name"`
	Age         int       `json:"age"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	BloodGroup  string    `json:"blood_group"`
	Units       int       `json:"units"`
	Hospital    string    `json:"hospital"`
	Description string    `json:"description"`
	Location    *GeoPoint `json:"location"`
}

type CreateOfferRequest struct {
	RequestID string `json:"request_id"`
	Units     int    `json:"units"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
}

// Response types

type CreateRequestResponse struct {
	RequestID string   `json:"request_id"`
	Request   *Request `json:"request"`
}

type ClaimResponse struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type MessageResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type CreateOfferResponse struct {
	OfferID  string `json:"offer_id"`
	WhatsApp string `json:"whatsapp,omitempty"`
	Message  string `json:"message"`
}

type NearbyRequest struct {
	Request
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
