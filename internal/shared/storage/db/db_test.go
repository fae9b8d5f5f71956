package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"
)

type nopDriver struct{ pingErr error }

func (d nopDriver) Open(name string) (driver.Conn, error) {
	return nopConn{pingErr: d.pingErr}, nil
}

type nopConn struct{ pingErr error }

func (nopConn) Prepare(query string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (nopConn) Close() error                              { return nil }
func (nopConn) Begin() (driver.Tx, error)                 { return nil, errors.New("not supported") }
func (c nopConn) Ping(ctx context.Context) error          { return c.pingErr }

var registerTestDriversOnce sync.Once

func withTestDriver(t *testing.T, name string) {
	t.Helper()
	registerTestDriversOnce.Do(func() {
		sql.Register("dbtest", nopDriver{})
		sql.Register("dbtest-down", nopDriver{pingErr: errors.New("connection refused")})
	})
	prev := openDB
	openDB = func(_, dsn string) (*sql.DB, error) {
		return sql.Open(name, dsn)
	}
	t.Cleanup(func() { openDB = prev })
}

func TestOptionsFromEnvAppliesOverrides(t *testing.T) {
	withTestDriver(t, "dbtest")

	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	opts := OptionsFromEnv(DefaultServerOptions())
	db, err := Connect(context.Background(), "ignored", opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer db.Close()

	if got := db.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("expected MaxOpenConnections=7, got %d", got)
	}
	if opts.MaxIdleConns != 3 {
		t.Fatalf("expected MaxIdleConns=3, got %d", opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime != 20*time.Minute {
		t.Fatalf("expected ConnMaxLifetime=20m, got %s", opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime != 45*time.Second {
		t.Fatalf("expected ConnMaxIdleTime=45s, got %s", opts.ConnMaxIdleTime)
	}
	if opts.PingTimeout != time.Second {
		t.Fatalf("expected PingTimeout=1s, got %s", opts.PingTimeout)
	}
}

func TestOptionsFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("DB_PING_TIMEOUT", "soon")

	defaults := DefaultMigrateOptions()
	opts := OptionsFromEnv(defaults)
	if opts != defaults {
		t.Fatalf("expected defaults to survive invalid env, got %+v", opts)
	}
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	if _, err := Connect(context.Background(), "  ", DefaultServerOptions()); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestConnectFailsWhenPingFails(t *testing.T) {
	withTestDriver(t, "dbtest-down")

	_, err := Connect(context.Background(), "ignored", DefaultServerOptions())
	if err == nil || !strings.Contains(err.Error(), "ping database") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestEmbeddedMigrationsAreAnnotated(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, migrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected migrations, got %d", len(entries))
	}
	for _, e := range entries {
		data, err := fs.ReadFile(migrationFiles, migrationsDir+"/"+e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		body := string(data)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Fatalf("%s missing goose annotations", e.Name())
		}
	}
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	if err := Migrate(context.Background(), nil, "sideways"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunMigrationsNilDatabaseIsNoop(t *testing.T) {
	if err := RunMigrations(context.Background(), nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
