package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chronoplan/chronoplan/pkg/client"
	"github.com/chronoplan/chronoplan/pkg/models"
	"github.com/chronoplan/chronoplan/pkg/retry"
)

func testLoader(t *testing.T, handler http.Handler) *Loader {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := client.New(client.Config{
		BaseURL:     ts.URL,
		RetryConfig: retry.Config{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	})
	return New(Config{Client: c})
}

func project() models.Project {
	return models.Project{Name: "roadmap", RefID: "r1", TeamName: "design"}
}

func TestLoadPreservesServerOrder(t *testing.T) {
	var gotQuery string
	loader := testLoader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/p/versions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("projectRefid")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"author": "bob", "timestamp": 1714000000000},
			{"author": "alice", "timestamp": 1715000000000}
		]`))
	}))

	records, err := loader.Load(context.Background(), project())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "r1" {
		t.Errorf("projectRefid = %q", gotQuery)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// No client-side re-sorting.
	if records[0].Author != "bob" || records[1].Author != "alice" {
		t.Errorf("order changed: %s, %s", records[0].Author, records[1].Author)
	}
	if records[0].Timestamp.UnixMilli() != 1714000000000 {
		t.Errorf("Timestamp = %v", records[0].Timestamp)
	}
}

func TestEmptyArrayYieldsEmptyList(t *testing.T) {
	loader := testLoader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	records, err := loader.Load(context.Background(), project())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty list, got %d records", len(records))
	}
}

func TestNonArrayBodyYieldsEmptyList(t *testing.T) {
	loader := testLoader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": "no history here"}`))
	}))

	records, err := loader.Load(context.Background(), project())
	if err != nil {
		t.Fatalf("a non-array body is a valid empty state, got error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty list, got %d records", len(records))
	}
}

func TestServerErrorIsTransportError(t *testing.T) {
	loader := testLoader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))

	_, err := loader.Load(context.Background(), project())
	if err == nil {
		t.Fatal("expected error")
	}
	te, ok := client.AsTransport(err)
	if !ok {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
	if te.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", te.Status)
	}
}

func TestLoadAsyncDeliversOnce(t *testing.T) {
	loader := testLoader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"author": "alice", "timestamp": 1715000000000}]`))
	}))

	res := <-loader.LoadAsync(context.Background(), project())
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Records) != 1 {
		t.Errorf("expected 1 record, got %d", len(res.Records))
	}
}
