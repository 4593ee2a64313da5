package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateServiceKey(t *testing.T) {
	key, plaintext, err := GenerateServiceKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(plaintext, "gabelle_") {
		t.Errorf("plaintext %q missing gabelle_ prefix", plaintext)
	}
	if key.Hash != HashKey(plaintext) {
		t.Error("hash does not match plaintext")
	}
	if key.Prefix != plaintext[:keyPrefixLen] {
		t.Errorf("prefix %q does not match plaintext start", key.Prefix)
	}

	// Two keys must differ.
	_, second, err := GenerateServiceKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plaintext == second {
		t.Error("generated identical keys")
	}
}

func TestAdminKeyRoundTrip(t *testing.T) {
	hash, err := HashAdminKey("correct horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !VerifyAdminKey(hash, "correct horse") {
		t.Error("valid admin key rejected")
	}
	if VerifyAdminKey(hash, "wrong horse") {
		t.Error("invalid admin key accepted")
	}
}

func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestServiceAuthMiddleware(t *testing.T) {
	key, plaintext, err := GenerateServiceKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mw := ServiceAuthMiddleware([]string{key.Hash})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "valid key", authHeader: "Bearer " + plaintext, wantStatus: http.StatusOK},
		{name: "wrong key", authHeader: "Bearer gabelle_nope", wantStatus: http.StatusUnauthorized},
		{name: "missing header", authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "malformed scheme", authHeader: "Basic " + plaintext, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotCaller string
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotCaller = CallerFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			mw(inner).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotCaller != plaintext[:keyPrefixLen] {
				t.Errorf("caller prefix = %q, want %q", gotCaller, plaintext[:keyPrefixLen])
			}
		})
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash, err := HashAdminKey("swordfish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name       string
		hash       string
		authHeader string
		wantStatus int
	}{
		{name: "valid key", hash: hash, authHeader: "Bearer swordfish", wantStatus: http.StatusOK},
		{name: "wrong key", hash: hash, authHeader: "Bearer guppy", wantStatus: http.StatusUnauthorized},
		{name: "missing header", hash: hash, authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "unconfigured admin", hash: "", authHeader: "Bearer swordfish", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			AdminAuthMiddleware(tt.hash)(okHandler(t)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
