package lock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chronoplan/chronoplan/pkg/client"
	"github.com/chronoplan/chronoplan/pkg/models"
)

func testManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(Config{Client: client.New(client.Config{BaseURL: ts.URL})})
}

func unlockedProject() models.Project {
	return models.Project{Name: "roadmap", RefID: "r1", TeamName: "design"}
}

func lockedProject(ownerID string) models.Project {
	return models.Project{
		Name: "roadmap", RefID: "r1", TeamName: "design",
		Lock: &models.LockInfo{
			OwnerID:           ownerID,
			OwnerName:         "Alice",
			ExpirationEpochMs: time.Now().Add(time.Hour).UnixMilli(),
		},
	}
}

func TestToggleAcquiresWhenUnlocked(t *testing.T) {
	var gotForm map[string]string
	mgr := testManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/p/lock" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		r.ParseForm()
		gotForm = map[string]string{
			"projectRefid":            r.PostForm.Get("projectRefid"),
			"expirationPeriodSeconds": r.PostForm.Get("expirationPeriodSeconds"),
			"requestLockToken":        r.PostForm.Get("requestLockToken"),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.LockInfo{
			OwnerID:           "u1",
			OwnerName:         "Alice",
			ExpirationEpochMs: time.Now().Add(10 * time.Minute).UnixMilli(),
			LockToken:         "tok",
		})
	}))

	lease, err := mgr.Toggle(context.Background(), unlockedProject(), true, 10*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lease == nil {
		t.Fatal("expected a lease")
	}
	if lease.OwnerID != "u1" || lease.LockToken != "tok" {
		t.Errorf("lease = %+v", lease)
	}
	if gotForm["projectRefid"] != "r1" {
		t.Errorf("projectRefid = %q", gotForm["projectRefid"])
	}
	if gotForm["expirationPeriodSeconds"] != "600" {
		t.Errorf("expirationPeriodSeconds = %q", gotForm["expirationPeriodSeconds"])
	}
	if gotForm["requestLockToken"] != "true" {
		t.Errorf("requestLockToken = %q", gotForm["requestLockToken"])
	}
}

func TestToggleReleasesWhenLocked(t *testing.T) {
	var gotPath, gotRefid string
	mgr := testManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		r.ParseForm()
		gotRefid = r.PostForm.Get("projectRefid")
		// Release success is an empty body.
	}))

	lease, err := mgr.Toggle(context.Background(), lockedProject("u1"), false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lease != nil {
		t.Errorf("release should return no lease, got %+v", lease)
	}
	if gotPath != "/p/unlock" {
		t.Errorf("path = %q, want /p/unlock", gotPath)
	}
	if gotRefid != "r1" {
		t.Errorf("projectRefid = %q", gotRefid)
	}
}

func TestAcquireThenReleaseRoundTrip(t *testing.T) {
	mgr := testManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/p/lock" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(models.LockInfo{
				OwnerID:           "u1",
				ExpirationEpochMs: time.Now().Add(time.Hour).UnixMilli(),
			})
		}
	}))

	ctx := context.Background()
	project := unlockedProject()

	lease, err := mgr.Toggle(ctx, project, false, time.Hour)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	project.Lock = lease
	if !project.IsLocked(time.Now()) {
		t.Fatal("project should be locked after acquire")
	}

	if _, err := mgr.Toggle(ctx, project, false, 0); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	project.Lock = nil
	if project.IsLocked(time.Now()) {
		t.Error("project should be unlocked after release")
	}
}

func TestAcquireRejectedSurfacesStatus(t *testing.T) {
	mgr := testManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "locked by someone else"})
	}))

	_, err := mgr.Toggle(context.Background(), unlockedProject(), false, time.Hour)
	if err == nil {
		t.Fatal("expected rejection, got silent success")
	}
	le, ok := client.AsLockRejected(err)
	if !ok {
		t.Fatalf("expected LockRejectedError, got %T: %v", err, err)
	}
	if le.Status != http.StatusConflict {
		t.Errorf("Status = %d, want 409", le.Status)
	}
	if le.Reason != "locked by someone else" {
		t.Errorf("Reason = %q", le.Reason)
	}
}

func TestAcquireWithEmptySuccessBody(t *testing.T) {
	mgr := testManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	lease, err := mgr.Toggle(context.Background(), unlockedProject(), false, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lease != nil {
		t.Errorf("empty body should yield no lease, got %+v", lease)
	}
}

func TestToggleAsyncReportsRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer ts.Close()

	var reported error
	done := make(chan struct{})
	mgr := New(Config{
		Client: client.New(client.Config{BaseURL: ts.URL}),
		OnError: func(err error) {
			reported = err
			close(done)
		},
	})

	res := <-mgr.ToggleAsync(context.Background(), unlockedProject(), false, time.Hour)
	if res.Err == nil {
		t.Fatal("expected error")
	}
	<-done
	if _, ok := client.AsLockRejected(reported); !ok {
		t.Errorf("reported error should be LockRejected, got %v", reported)
	}
}
