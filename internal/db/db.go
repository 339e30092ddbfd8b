// internal/db/db.go
package db

import (
    "database/sql"
    "fmt"

    _ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
    conn, err := sql.Open("postgres", dsn)
    if err != nil {
        return nil, fmt.Errorf("failed to connect to DB: %w", err)
    }
    if err := conn.Ping(); err != nil {
        return nil, fmt.Errorf("failed to ping DB: %w", err)
    }
    return conn, nil
}
