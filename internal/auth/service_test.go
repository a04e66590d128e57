package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"mamachat/internal/config"
	"mamachat/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertToken(t *testing.T, db *sql.DB, userID int64, token string, expires time.Time) {
	t.Helper()
	if _, err := db.Exec(`INSERT OR IGNORE INTO users (id, username, created_at) VALUES (?, ?, ?)`, userID, "user", time.Now()); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, time.Now().UTC(), expires.UTC()); err != nil {
		t.Fatalf("insert token: %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	db := openTestDB(t)
	insertToken(t, db, 1, "live", time.Now().Add(time.Hour))
	insertToken(t, db, 1, "stale", time.Now().Add(-time.Hour))
	svc := NewService(db, "sqlite3")
	ctx := context.Background()

	if id, err := svc.ValidateToken(ctx, "live"); err != nil || id != 1 {
		t.Fatalf("ValidateToken live: id=%d err=%v", id, err)
	}
	if _, err := svc.ValidateToken(ctx, "stale"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := svc.ValidateToken(ctx, "nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.ValidateToken(ctx, ""); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("validation must not modify tokens: n=%d err=%v", n, err)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openTestDB(t)
	insertToken(t, db, 5, "tok", time.Now().Add(time.Hour))
	svc := NewService(db, "sqlite3")

	r := gin.New()
	r.GET("/me", svc.Middleware(), func(c *gin.Context) {
		id, _ := UserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})

	cases := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"bearer", "Bearer tok", "", http.StatusOK},
		{"cookie", "", "tok", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", "Bearer other", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "auth_token", Value: tc.cookie})
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}
