package models

import (
	"testing"
	"time"
)

func TestRequestClone_IsDeep(t *testing.T) {
	requester := "user-1"
	confirmed := time.Now()
	orig := &Request{
		ID:          "req-1",
		RequesterID: &requester,
		Location:    &GeoPoint{Lat: 1, Lng: 2},
		PrimaryDonor: &PrimaryDonor{
			DonorID:     "d1",
			ConfirmedAt: &confirmed,
		},
		BackupDonors: []BackupDonor{{DonorID: "d2"}},
	}

	c := orig.Clone()
	*c.RequesterID = "other"
	c.Location.Lat = 9
	c.PrimaryDonor.DonorID = "changed"
	c.BackupDonors[0].Promoted = true

	if *orig.RequesterID != "user-1" {
		t.Error("requester id shared between clones")
	}
	if orig.Location.Lat != 1 {
		t.Error("location shared between clones")
	}
	if orig.PrimaryDonor.DonorID != "d1" {
		t.Error("primary donor shared between clones")
	}
	if orig.BackupDonors[0].Promoted {
		t.Error("backup slice shared between clones")
	}
}

func TestRequestIsRequester(t *testing.T) {
	id := "user-1"
	tests := []struct {
		name   string
		req    Request
		userID string
		uid    string
		want   bool
	}{
		{"by id", Request{RequesterID: &id}, "user-1", "", true},
		{"other id", Request{RequesterID: &id}, "user-2", "", false},
		{"legacy uid", Request{RequesterUID: "fb-1"}, "user-9", "fb-1", true},
		{"empty uid never matches", Request{}, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.IsRequester(tt.userID, tt.uid); got != tt.want {
				t.Errorf("IsRequester() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []string{StatusFulfilled, StatusFailed, StatusCancelled} {
		if !(&Request{Status: status}).IsTerminal() {
			t.Errorf("%s should be terminal", status)
		}
	}
	for _, status := range ActiveStatuses {
		if (&Request{Status: status}).IsTerminal() {
			t.Errorf("%s should not be terminal", status)
		}
	}
}

func TestDonorSnapshotMerge(t *testing.T) {
	snap := DonorSnapshot{Name: "Snap", Phone: "+100", Email: "snap@example.com", Age: 30}

	if got := snap.Merge(nil); got != snap {
		t.Errorf("Merge(nil) = %+v, want snapshot unchanged", got)
	}

	live := &User{Name: "Live", Phone: "", Email: "live@example.com"}
	got := snap.Merge(live)
	want := DonorSnapshot{Name: "Live", Phone: "+100", Email: "live@example.com", Age: 30}
	if got != want {
		t.Errorf("Merge() = %+v, want %+v", got, want)
	}
}
