package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"mamachat/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database selected by dbType.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch Dialect(dbType) {
	case "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if dbCfg.DSN == ":memory:" {
			db.SetMaxOpenConns(1)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case "postgres":
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Dialect normalises a configured driver name to sqlite3, mysql or postgres.
func Dialect(driver string) string {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "mysql":
		return "mysql"
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return strings.ToLower(driver)
	}
}

// Rebind rewrites ? placeholders to $n for postgres.
func Rebind(driver, query string) string {
	if Dialect(driver) != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch Dialect(driver) {
	case "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL UNIQUE,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
			`CREATE TABLE IF NOT EXISTS profiles (
				user_id INTEGER PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				age INTEGER,
				weeks_pregnant INTEGER,
				delivery_preference TEXT NOT NULL DEFAULT '',
				previous_pregnancies INTEGER,
				activity_level TEXT NOT NULL DEFAULT '',
				diet TEXT NOT NULL DEFAULT '',
				work_situation TEXT NOT NULL DEFAULT '',
				partner_support TEXT NOT NULL DEFAULT '',
				pre_existing_conditions TEXT NOT NULL DEFAULT '',
				preferred_tone TEXT NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS health_readings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				kind TEXT NOT NULL,
				systolic INTEGER NOT NULL DEFAULT 0,
				diastolic INTEGER NOT NULL DEFAULT 0,
				level REAL NOT NULL DEFAULT 0,
				measurement_type TEXT NOT NULL DEFAULT '',
				weight REAL NOT NULL DEFAULT 0,
				unit TEXT NOT NULL DEFAULT '',
				recorded_at TEXT NOT NULL DEFAULT '',
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_health_readings_user_kind ON health_readings(user_id, kind, recorded_at)`,
			`CREATE TABLE IF NOT EXISTS appointments (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				type TEXT NOT NULL,
				date TEXT NOT NULL,
				time TEXT NOT NULL DEFAULT '',
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_appointments_user_date ON appointments(user_id, date)`,
			`CREATE TABLE IF NOT EXISTS chat_sessions (
				id TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL,
				provider TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS chat_messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				session_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				attachments INTEGER NOT NULL DEFAULT 0,
				outcome TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY(session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				username VARCHAR(255) NOT NULL UNIQUE,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				user_id BIGINT UNSIGNED NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				INDEX idx_user_tokens_user (user_id),
				CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS profiles (
				user_id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				age INT NULL,
				weeks_pregnant INT NULL,
				delivery_preference VARCHAR(255) NOT NULL DEFAULT '',
				previous_pregnancies INT NULL,
				activity_level VARCHAR(255) NOT NULL DEFAULT '',
				diet VARCHAR(255) NOT NULL DEFAULT '',
				work_situation VARCHAR(255) NOT NULL DEFAULT '',
				partner_support VARCHAR(255) NOT NULL DEFAULT '',
				pre_existing_conditions TEXT NOT NULL,
				preferred_tone VARCHAR(100) NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL,
				CONSTRAINT fk_profiles_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS health_readings (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				kind VARCHAR(50) NOT NULL,
				systolic INT NOT NULL DEFAULT 0,
				diastolic INT NOT NULL DEFAULT 0,
				level DOUBLE NOT NULL DEFAULT 0,
				measurement_type VARCHAR(50) NOT NULL DEFAULT '',
				weight DOUBLE NOT NULL DEFAULT 0,
				unit VARCHAR(20) NOT NULL DEFAULT '',
				recorded_at VARCHAR(40) NOT NULL DEFAULT '',
				PRIMARY KEY (id),
				INDEX idx_health_readings_user_kind (user_id, kind, recorded_at),
				CONSTRAINT fk_health_readings_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS appointments (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				type VARCHAR(100) NOT NULL,
				date VARCHAR(20) NOT NULL,
				time VARCHAR(20) NOT NULL DEFAULT '',
				PRIMARY KEY (id),
				INDEX idx_appointments_user_date (user_id, date),
				CONSTRAINT fk_appointments_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_sessions (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				user_id BIGINT UNSIGNED NOT NULL,
				provider VARCHAR(50) NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				INDEX idx_chat_sessions_user (user_id),
				CONSTRAINT fk_chat_sessions_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				session_id VARCHAR(64) NOT NULL,
				role VARCHAR(50) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				attachments INT NOT NULL DEFAULT 0,
				outcome VARCHAR(50) NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_chat_messages_user (user_id, created_at),
				INDEX idx_chat_messages_session (session_id),
				CONSTRAINT fk_chat_messages_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				CONSTRAINT fk_chat_messages_session FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case "postgres":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
			`CREATE TABLE IF NOT EXISTS profiles (
				user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				name TEXT NOT NULL DEFAULT '',
				age INTEGER,
				weeks_pregnant INTEGER,
				delivery_preference TEXT NOT NULL DEFAULT '',
				previous_pregnancies INTEGER,
				activity_level TEXT NOT NULL DEFAULT '',
				diet TEXT NOT NULL DEFAULT '',
				work_situation TEXT NOT NULL DEFAULT '',
				partner_support TEXT NOT NULL DEFAULT '',
				pre_existing_conditions TEXT NOT NULL DEFAULT '',
				preferred_tone TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS health_readings (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				kind TEXT NOT NULL,
				systolic INTEGER NOT NULL DEFAULT 0,
				diastolic INTEGER NOT NULL DEFAULT 0,
				level DOUBLE PRECISION NOT NULL DEFAULT 0,
				measurement_type TEXT NOT NULL DEFAULT '',
				weight DOUBLE PRECISION NOT NULL DEFAULT 0,
				unit TEXT NOT NULL DEFAULT '',
				recorded_at TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_health_readings_user_kind ON health_readings(user_id, kind, recorded_at)`,
			`CREATE TABLE IF NOT EXISTS appointments (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				type TEXT NOT NULL,
				date TEXT NOT NULL,
				time TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_appointments_user_date ON appointments(user_id, date)`,
			`CREATE TABLE IF NOT EXISTS chat_sessions (
				id TEXT PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				provider TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS chat_messages (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				attachments INTEGER NOT NULL DEFAULT 0,
				outcome TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id)`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
