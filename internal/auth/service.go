package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mamachat/internal/storage"
)

var (
	ErrTokenRequired = errors.New("token required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
)

// Service validates bearer tokens issued by the account service. It never
// writes to user_tokens.
type Service struct {
	db         *sql.DB
	driver     string
	cookieName string
	headerName string
	now        func() time.Time
}

func NewService(db *sql.DB, driver string) *Service {
	return &Service{
		db:         db,
		driver:     driver,
		cookieName: "auth_token",
		headerName: "Authorization",
		now:        time.Now,
	}
}

// ValidateToken resolves a live token to its user id.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (int64, error) {
	if authToken == "" {
		return 0, ErrTokenRequired
	}
	var (
		userID  int64
		expires time.Time
	)
	err := s.db.QueryRowContext(ctx,
		storage.Rebind(s.driver, `SELECT user_id, expires_at FROM user_tokens WHERE token = ?`), authToken,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInvalidToken
		}
		return 0, fmt.Errorf("lookup token: %w", err)
	}
	if s.now().UTC().After(expires) {
		return 0, ErrTokenExpired
	}
	return userID, nil
}
