// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/danielhkuo/real-hero/models"
	"github.com/danielhkuo/real-hero/testutil"
)

// TestConcurrentClaims verifies that simultaneous claims from different
// donors produce exactly one primary and no lost backups
func TestConcurrentClaims(t *testing.T) {
	env := testutil.NewEnv(t)
	handler := NewRequestHandler(env.Controller)

	testutil.CreateTestUser(t, env.Store, "requester")
	r := testutil.CreateTestRequest(t, env.Controller, "requester")

	numDonors := 20
	donors := make([]string, numDonors)
	for i := range donors {
		donors[i] = fmt.Sprintf("donor-%02d", i)
		testutil.CreateTestUser(t, env.Store, donors[i])
	}

	var primaries, backups atomic.Int32
	var wg sync.WaitGroup

	for _, id := range donors {
		wg.Add(1)
		go func(donorID string) {
			defer wg.Done()

			w := serve(handler.Claim, withID(httptest.NewRequest("POST", "/", nil), r.ID), donorID)
			if w.Code != http.StatusOK {
				t.Errorf("Claim by %s failed: %d - %s", donorID, w.Code, w.Body.String())
				return
			}
			var resp models.ClaimResponse
			testutil.AssertJSON(t, w, &resp)
			switch resp.Role {
			case models.RolePrimary:
				primaries.Add(1)
			case models.RoleBackup:
				backups.Add(1)
			}
		}(id)
	}

	wg.Wait()

	if primaries.Load() != 1 {
		t.Errorf("Expected exactly 1 primary, got %d", primaries.Load())
	}
	if int(backups.Load()) != numDonors-1 {
		t.Errorf("Expected %d backups, got %d", numDonors-1, backups.Load())
	}

	got, err := env.Store.GetRequest(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Failed to load request: %v", err)
	}
	if got.Status != models.StatusBackupAssigned {
		t.Errorf("Expected backup_assigned, got %s", got.Status)
	}
	if len(got.BackupDonors) != numDonors-1 {
		t.Errorf("Expected %d backups stored, got %d", numDonors-1, len(got.BackupDonors))
	}

	responses, err := env.Store.ListResponsesByRequest(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Failed to list responses: %v", err)
	}
	if len(responses) != numDonors {
		t.Errorf("Expected %d responses, got %d", numDonors, len(responses))
	}
}

// TestConcurrentCancels verifies that the primary and every backup
// cancelling at once leaves the request open with no donors
func TestConcurrentCancels(t *testing.T) {
	env := testutil.NewEnv(t)
	handler := NewRequestHandler(env.Controller)

	testutil.CreateTestUser(t, env.Store, "requester")
	r := testutil.CreateTestRequest(t, env.Controller, "requester")

	donors := []string{"d1", "d2", "d3", "d4", "d5"}
	for _, id := range donors {
		testutil.CreateTestUser(t, env.Store, id)
		w := serve(handler.Claim, withID(httptest.NewRequest("POST", "/", nil), r.ID), id)
		testutil.AssertStatus(t, w, http.StatusOK)
	}

	var failures atomic.Int32
	var wg sync.WaitGroup
	for _, id := range donors {
		wg.Add(1)
		go func(donorID string) {
			defer wg.Done()
			w := serve(handler.Cancel, withID(httptest.NewRequest("POST", "/", nil), r.ID), donorID)
			if w.Code != http.StatusOK {
				failures.Add(1)
			}
		}(id)
	}
	wg.Wait()

	got, err := env.Store.GetRequest(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Failed to load request: %v", err)
	}

	// Promoted donors cancel as primary, so every cancel finds its donor
	if failures.Load() != 0 {
		t.Errorf("Expected all cancels to succeed, %d failed", failures.Load())
	}
	if got.Status != models.StatusOpen {
		t.Errorf("Expected open after all donors withdrew, got %s", got.Status)
	}
	if got.PrimaryDonor != nil {
		t.Errorf("Expected no primary, got %+v", got.PrimaryDonor)
	}
}
