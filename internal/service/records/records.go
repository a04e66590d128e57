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

// Store reads user records. It never writes profiles, readings or appointments.
type Store struct {
	db     *sql.DB
	driver string
}

func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) q(query string) string {
	return storage.Rebind(s.driver, query)
}

// Profile returns the stored profile, or nil when the user has none.
func (s *Store) Profile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	var (
		p                       models.UserProfile
		age, weeks, pregnancies sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.q(`SELECT user_id, name, age, weeks_pregnant, delivery_preference,
		previous_pregnancies, activity_level, diet, work_situation, partner_support,
		pre_existing_conditions, preferred_tone FROM profiles WHERE user_id = ?`), userID).Scan(
		&p.UserID, &p.Name, &age, &weeks, &p.DeliveryPreference,
		&pregnancies, &p.ActivityLevel, &p.Diet, &p.WorkSituation, &p.PartnerSupport,
		&p.PreExistingConditions, &p.PreferredTone,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	p.Age = nullInt(age)
	p.WeeksPregnant = nullInt(weeks)
	p.PreviousPregnancies = nullInt(pregnancies)
	return &p, nil
}

// LatestReading returns the most recent reading of kind, or nil.
func (s *Store) LatestReading(ctx context.Context, userID int64, kind models.VitalKind) (*models.HealthReading, error) {
	r := models.HealthReading{Kind: kind}
	err := s.db.QueryRowContext(ctx, s.q(`SELECT systolic, diastolic, level, measurement_type, weight, unit, recorded_at
		FROM health_readings WHERE user_id = ? AND kind = ?
		ORDER BY recorded_at DESC, id DESC LIMIT 1`), userID, string(kind)).Scan(
		&r.Systolic, &r.Diastolic, &r.Level, &r.MeasurementType, &r.Weight, &r.Unit, &r.RecordedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s reading: %w", kind, err)
	}
	return &r, nil
}

// UpcomingAppointments lists appointments that have not yet passed, soonest first.
func (s *Store) UpcomingAppointments(ctx context.Context, userID int64, now time.Time) ([]models.Appointment, error) {
	// Times are zero-padded HH:MM, so string order is clock order. Untimed
	// appointments stay listed for the whole day.
	today := now.Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT type, date, time FROM appointments
		WHERE user_id = ? AND (date > ? OR (date = ? AND (time = '' OR time > ?)))
		ORDER BY date ASC, time ASC, id ASC LIMIT 10`),
		userID, today, today, now.Format("15:04"))
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.Type, &a.Date, &a.Time); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentUserMessages returns up to limit excerpts the user wrote, newest first.
func (s *Store) RecentUserMessages(ctx context.Context, userID int64, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT content FROM chat_messages
		WHERE user_id = ? AND role = ? AND content <> '' AND outcome <> ?
		ORDER BY created_at DESC, id DESC LIMIT ?`), userID, string(models.RoleUser), models.OutcomeSeed, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
