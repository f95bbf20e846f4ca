package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	"github.com/sahilchouksey/studymill/config"
)

// PostgreSQLStore holds a raw database/sql connection. It is used for
// session-scoped operations GORM's pooled connections cannot guarantee,
// such as advisory locks held across a sweep run.
type PostgreSQLStore struct {
	db *sql.DB
}

func Start() (*PostgreSQLStore, error) {
	getEnv, err := config.Get()
	if err != nil {
		return nil, err
	}

	connectStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv.DB_HOST, getEnv.DB_PORT, getEnv.DB_USER_NAME, getEnv.DB_PASSWORD, getEnv.DB_NAME, getEnv.DB_SSL_MODE)

	db, err := sql.Open("postgres", connectStr)
	if err != nil {
		log.Println("Unable to start PostgreSQL database:", err)
		return nil, err
	}

	// One connection so advisory locks stay on the same session
	db.SetMaxOpenConns(1)

	log.Println("Successfully connected to PostgreSQL Database.")
	return &PostgreSQLStore{db: db}, nil
}

func (s *PostgreSQLStore) Close() error {
	log.Println("Closing PostgreSQL Database.")
	return s.db.Close()
}

// HealthCheck verifies the database connection is alive
func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}

// TryAdvisoryLock attempts a non-blocking session advisory lock. Returns true
// when this instance acquired it. Used by background sweeps so only one
// instance of the service performs the work.
func (s *PostgreSQLStore) TryAdvisoryLock(key int64) (bool, error) {
	var acquired bool
	if err := s.db.QueryRow("SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	return acquired, nil
}

// AdvisoryUnlock releases a session advisory lock acquired by TryAdvisoryLock.
func (s *PostgreSQLStore) AdvisoryUnlock(key int64) error {
	var released bool
	if err := s.db.QueryRow("SELECT pg_advisory_unlock($1)", key).Scan(&released); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !released {
		return fmt.Errorf("advisory unlock: lock %d was not held", key)
	}
	return nil
}
