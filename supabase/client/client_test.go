package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{URL: "https://x.supabase.co/", APIKey: "k"}, false},
		{"missing url", Config{APIKey: "k"}, true},
		{"missing key", Config{URL: "https://x.supabase.co"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && c.BaseURL() != "https://x.supabase.co" {
				t.Errorf("BaseURL() = %q, want trailing slash trimmed", c.BaseURL())
			}
		})
	}
}

func TestQueryBuilder_Query(t *testing.T) {
	c, _ := New(Config{URL: "http://localhost", APIKey: "k"})

	q := c.From("outfits").Select("*").Eq("gender", "female").Cs("archetypes", "casual_chic").Order("created_at", false).Limit(5)
	got := q.Query()

	for _, want := range []string{
		"select=%2A",
		"gender=eq.female",
		"archetypes=cs.%7B%22casual_chic%22%7D",
		"order=created_at.desc",
		"limit=5",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Query() = %q, missing %q", got, want)
		}
	}
}

func TestExecute_SendsHeadersAndDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/products" {
			t.Errorf("path = %s, want /rest/v1/products", r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("apikey header = %q", r.Header.Get("apikey"))
		}
		if r.Header.Get("Authorization") != "Bearer anon" {
			t.Errorf("Authorization header = %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("limit = %q, want 2", r.URL.Query().Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"p1"},{"id":"p2"}]`))
	}))
	defer server.Close()

	c, _ := New(Config{URL: server.URL, APIKey: "anon"})
	resp, err := c.From("products").Select("*").Limit(2).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var rows []map[string]string
	if err := resp.JSON(&rows); err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	if len(rows) != 2 || rows[0]["id"] != "p1" {
		t.Errorf("rows = %v", rows)
	}
}

func TestExecute_SingleNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/vnd.pgrst.object+json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.WriteHeader(http.StatusNotAcceptable)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    CodeNoRows,
			"message": "JSON object requested, multiple (or no) rows returned",
		})
	}))
	defer server.Close()

	c, _ := New(Config{URL: server.URL, APIKey: "anon"})
	_, err := c.From("users").Select("*").Eq("id", "missing").Single().Execute(context.Background())

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Execute() error = %v, want ErrNotFound", err)
	}
}

func TestExecute_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"database is down"}`))
	}))
	defer server.Close()

	c, _ := New(Config{URL: server.URL, APIKey: "anon"})
	_, err := c.From("tribes").Execute(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Execute() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", apiErr.StatusCode)
	}
	if apiErr.Message != "database is down" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("500 should not match ErrNotFound")
	}
}

func TestInsertAndUpdate(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"s1"}]`))
	}))
	defer server.Close()

	c, _ := New(Config{URL: server.URL, APIKey: "anon"})
	ctx := context.Background()

	if _, err := c.From("tribe_challenge_submissions").Insert(ctx, map[string]string{"id": "s1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := c.From("tribe_challenges").Eq("id", "c1").Update(ctx, map[string]string{"status": "open"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if len(methods) != 2 || methods[0] != http.MethodPost || methods[1] != http.MethodPatch {
		t.Errorf("methods = %v, want [POST PATCH]", methods)
	}
}
