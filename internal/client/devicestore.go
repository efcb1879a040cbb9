package client

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite"
)

// OpenDeviceStore opens the WhatsApp device store. A Postgres URL wins;
// otherwise a local SQLite file is used.
func OpenDeviceStore(ctx context.Context, postgresURL, sqlitePath string) (*sqlstore.Container, error) {
	dialect, dsn := deviceStoreDSN(postgresURL, sqlitePath)

	container, err := sqlstore.New(ctx, dialect, dsn, NewWALogger("store"))
	if err != nil {
		return nil, fmt.Errorf("open %s device store: %w", dialect, err)
	}
	return container, nil
}

func deviceStoreDSN(postgresURL, sqlitePath string) (dialect, dsn string) {
	if postgresURL != "" {
		return "pgx", postgresURL
	}
	if sqlitePath == "" {
		sqlitePath = "wasender.db"
	}
	return "sqlite", "file:" + sqlitePath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
