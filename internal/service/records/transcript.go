package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mamachat/internal/models"
	"mamachat/internal/storage"
)

var ErrSessionNotFound = errors.New("chat session not found")

// CreateChatSession records a new session for history views.
func (s *Store) CreateChatSession(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return errors.New("session id is required")
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO chat_sessions (id, user_id, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`), session.ID, session.UserID, session.Provider, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}
	return nil
}

// GetChatSession loads a session owned by userID.
func (s *Store) GetChatSession(ctx context.Context, userID int64, sessionID string) (*models.Session, error) {
	var sess models.Session
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, user_id, provider, created_at, updated_at
		FROM chat_sessions WHERE id = ? AND user_id = ?`), sessionID, userID).Scan(
		&sess.ID, &sess.UserID, &sess.Provider, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("query chat session: %w", err)
	}
	return &sess, nil
}

// AppendMessage stores one transcript row and bumps the session timestamp.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.SessionID == "" {
		return errors.New("message session id is required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message: %w", err)
	}
	defer tx.Rollback()

	insert := `INSERT INTO chat_messages (user_id, session_id, role, content, attachments, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	args := []any{msg.UserID, msg.SessionID, string(msg.Role), msg.Content, msg.Attachments, msg.Outcome, msg.CreatedAt}
	if storage.Dialect(s.driver) == "postgres" {
		if err := tx.QueryRowContext(ctx, s.q(insert+` RETURNING id`), args...).Scan(&msg.ID); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, s.q(insert), args...)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if msg.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("message id: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`), msg.CreatedAt, msg.SessionID); err != nil {
		return fmt.Errorf("touch chat session: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns the persisted transcript of a session in order.
func (s *Store) ListMessages(ctx context.Context, userID int64, sessionID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, user_id, session_id, role, content, attachments, outcome, created_at
		FROM chat_messages WHERE user_id = ? AND session_id = ? ORDER BY created_at ASC, id ASC`), userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var (
			m    models.Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &role, &m.Content, &m.Attachments, &m.Outcome, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, &m)
	}
	return out, rows.Err()
}
