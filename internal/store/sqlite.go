package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // single writer for every mutation
	retry   shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS surveys (
		survey_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		survey_type TEXT NOT NULL DEFAULT '',
		settings_json TEXT NOT NULL DEFAULT '',
		notification_showing INTEGER NOT NULL DEFAULT 0,
		most_recent_alarm_time INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preferences (
		pref_key TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stored_messages (
		message_id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		received_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stored_messages_received ON stored_messages(received_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// write serializes a mutation and retries it on SQLite lock contention.
func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return shared.RetryOnConflict(ctx, s.retry, op, fn)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// KnownSurveyIDs returns all stored survey IDs in insertion order.
func (s *SQLiteStore) KnownSurveyIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT survey_id FROM surveys ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query survey ids: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close survey id rows", "error", closeErr)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan survey id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate survey ids: %w", err)
	}
	return ids, nil
}

// GetSurvey retrieves a survey by ID.
func (s *SQLiteStore) GetSurvey(ctx context.Context, surveyID string) (*domain.Survey, error) {
	query := `
		SELECT survey_id, name, survey_type, settings_json,
		       notification_showing, most_recent_alarm_time
		FROM surveys WHERE survey_id = ?`

	var survey domain.Survey
	var rawType string
	err := s.db.QueryRowContext(ctx, query, surveyID).Scan(
		&survey.ID, &survey.Name, &rawType, &survey.Settings,
		&survey.NotificationShowing, &survey.MostRecentAlarmTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan survey row: %w", err)
	}

	survey.Type = domain.ParseSurveyType(rawType)
	return &survey, nil
}

func (s *SQLiteStore) surveyColumn(ctx context.Context, column, surveyID string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT `+column+` FROM surveys WHERE survey_id = ?`, surveyID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read survey %s: %w", column, err)
	}
	return value, nil
}

// SurveyType returns the decoded survey type.
func (s *SQLiteStore) SurveyType(ctx context.Context, surveyID string) (domain.SurveyType, error) {
	raw, err := s.surveyColumn(ctx, "survey_type", surveyID)
	if err != nil {
		return domain.ParseSurveyType(""), err
	}
	return domain.ParseSurveyType(raw), nil
}

// SurveySettings returns the raw settings JSON.
func (s *SQLiteStore) SurveySettings(ctx context.Context, surveyID string) (string, error) {
	return s.surveyColumn(ctx, "settings_json", surveyID)
}

// SurveyName returns the survey display name.
func (s *SQLiteStore) SurveyName(ctx context.Context, surveyID string) (string, error) {
	return s.surveyColumn(ctx, "name", surveyID)
}

// UpsertSurvey creates or updates survey metadata.
func (s *SQLiteStore) UpsertSurvey(ctx context.Context, survey *domain.Survey) error {
	if survey == nil || survey.ID == "" {
		return fmt.Errorf("upsert survey: missing survey id")
	}

	query := `
	INSERT INTO surveys (survey_id, name, survey_type, settings_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(survey_id) DO UPDATE SET
		name = excluded.name,
		survey_type = excluded.survey_type,
		settings_json = excluded.settings_json,
		updated_at = excluded.updated_at`

	now := time.Now().Unix()
	return s.write(ctx, "upsert_survey", func() error {
		_, err := s.db.ExecContext(ctx, query,
			survey.ID, survey.Name, survey.Type.Raw, survey.Settings, now, now,
		)
		if err != nil {
			return fmt.Errorf("upsert survey: %w", err)
		}
		return nil
	})
}

// NotificationShowing reports the persisted notification flag.
func (s *SQLiteStore) NotificationShowing(ctx context.Context, surveyID string) (bool, error) {
	var showing bool
	err := s.db.QueryRowContext(ctx,
		`SELECT notification_showing FROM surveys WHERE survey_id = ?`, surveyID,
	).Scan(&showing)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read notification state: %w", err)
	}
	return showing, nil
}

// SetNotificationShowing updates the notification flag for a survey.
func (s *SQLiteStore) SetNotificationShowing(ctx context.Context, surveyID string, showing bool) error {
	return s.updateSurvey(ctx, "set_notification_showing",
		`UPDATE surveys SET notification_showing = ?, updated_at = ? WHERE survey_id = ?`,
		showing, time.Now().Unix(), surveyID)
}

// SetMostRecentAlarmTime records the last alarm time for a survey.
func (s *SQLiteStore) SetMostRecentAlarmTime(ctx context.Context, surveyID string, unixMillis int64) error {
	return s.updateSurvey(ctx, "set_most_recent_alarm_time",
		`UPDATE surveys SET most_recent_alarm_time = ?, updated_at = ? WHERE survey_id = ?`,
		unixMillis, time.Now().Unix(), surveyID)
}

func (s *SQLiteStore) updateSurvey(ctx context.Context, op, query string, args ...any) error {
	return s.write(ctx, op, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			slog.Debug("survey update affected 0 rows", "op", op, "survey_id", args[len(args)-1])
		}
		return nil
	})
}

func (s *SQLiteStore) pref(ctx context.Context, key string) (prefKind, string, bool, error) {
	var kind, value string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, value FROM preferences WHERE pref_key = ?`, key,
	).Scan(&kind, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("read preference %s: %w", key, err)
	}
	return prefKind(kind), value, true, nil
}

// Bool reads a boolean preference. Absent or non-boolean values read as false.
func (s *SQLiteStore) Bool(ctx context.Context, key string) (bool, error) {
	kind, value, ok, err := s.pref(ctx, key)
	if err != nil || !ok || kind != prefBool {
		return false, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, nil
	}
	return b, nil
}

// String reads a string preference.
func (s *SQLiteStore) String(ctx context.Context, key string) (string, bool, error) {
	kind, value, ok, err := s.pref(ctx, key)
	if err != nil || !ok || kind != prefString {
		return "", false, err
	}
	return value, true, nil
}

// Commit writes every pref in a single transaction.
func (s *SQLiteStore) Commit(ctx context.Context, prefs ...Pref) error {
	if len(prefs) == 0 {
		return nil
	}

	query := `
	INSERT INTO preferences (pref_key, kind, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(pref_key) DO UPDATE SET
		kind = excluded.kind,
		value = excluded.value,
		updated_at = excluded.updated_at`

	return s.write(ctx, "commit_preferences", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin preferences tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().Unix()
		for _, p := range prefs {
			if _, err := tx.ExecContext(ctx, query, p.Key, string(p.kind), p.value, now); err != nil {
				return fmt.Errorf("write preference %s: %w", p.Key, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit preferences: %w", err)
		}
		return nil
	})
}

// PutMessage stores a researcher message.
func (s *SQLiteStore) PutMessage(ctx context.Context, msg domain.StoredMessage) error {
	query := `
	INSERT INTO stored_messages (message_id, content, received_at)
	VALUES (?, ?, ?)
	ON CONFLICT(message_id) DO UPDATE SET content = excluded.content`

	return s.write(ctx, "put_message", func() error {
		if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.Content, msg.ReceivedOn.UnixMilli()); err != nil {
			return fmt.Errorf("put message: %w", err)
		}
		return nil
	})
}

// GetMessage retrieves a stored message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*domain.StoredMessage, error) {
	var msg domain.StoredMessage
	var receivedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id, content, received_at FROM stored_messages WHERE message_id = ?`, messageID,
	).Scan(&msg.ID, &msg.Content, &receivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}
	msg.ReceivedOn = time.UnixMilli(receivedAt)
	return &msg, nil
}

// ListMessages returns every stored message, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context) ([]domain.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, content, received_at FROM stored_messages ORDER BY received_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var msgs []domain.StoredMessage
	for rows.Next() {
		var msg domain.StoredMessage
		var receivedAt int64
		if err := rows.Scan(&msg.ID, &msg.Content, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.ReceivedOn = time.UnixMilli(receivedAt)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

var _ Repository = (*SQLiteStore)(nil)
