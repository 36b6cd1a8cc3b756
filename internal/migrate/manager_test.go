package migrate

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/go-kit/log"
	"github.com/pressly/goose/v3"
)

func stubGoose(t *testing.T) *[]string {
	t.Helper()
	var calls []string
	origUp, origDown, origVersion := gooseUp, gooseDown, gooseDBVersion
	origFS, origDialect, origLogger := gooseSetBaseFS, gooseSetDialect, gooseSetLogger
	t.Cleanup(func() {
		gooseUp, gooseDown, gooseDBVersion = origUp, origDown, origVersion
		gooseSetBaseFS, gooseSetDialect, gooseSetLogger = origFS, origDialect, origLogger
	})

	gooseSetBaseFS = func(fs.FS) { calls = append(calls, "fs") }
	gooseSetLogger = func(goose.Logger) {}
	gooseSetDialect = func(d string) error {
		calls = append(calls, "dialect:"+d)
		return nil
	}
	gooseUp = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		calls = append(calls, "up:"+dir)
		return nil
	}
	gooseDown = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		calls = append(calls, "down:"+dir)
		return errors.New("no migrations to roll back")
	}
	gooseDBVersion = func(context.Context, *sql.DB) (int64, error) {
		calls = append(calls, "version")
		return 1, nil
	}
	return &calls
}

func TestEmbeddedMigrations(t *testing.T) {
	m := NewManager(nil)
	files, err := m.Migrations()
	if err != nil {
		t.Fatalf("Migrations error: %v", err)
	}
	if len(files) == 0 || files[0] != "sql/00001_accounts.sql" {
		t.Fatalf("unexpected migrations: %v", files)
	}
	body, err := fs.ReadFile(embedded, files[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "accounts_username_key", "accounts_email_key"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}

func TestUpConfiguresGoose(t *testing.T) {
	calls := stubGoose(t)
	m := NewManager(nil)
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("Up error: %v", err)
	}
	want := []string{"fs", "dialect:postgres", "up:sql"}
	if strings.Join(*calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", *calls, want)
	}
}

func TestDownWrapsError(t *testing.T) {
	stubGoose(t)
	mem := fstest.MapFS{"custom/00001_x.sql": {Data: []byte("-- +goose Up\n")}}
	m := NewManager(nil, WithFS(mem, "custom"))
	err := m.Down(context.Background())
	if err == nil || !strings.Contains(err.Error(), "migrate down") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	stubGoose(t)
	v, err := NewManager(nil).Version(context.Background())
	if err != nil || v != 1 {
		t.Fatalf("Version = %d, %v", v, err)
	}
}

func TestGooseLoggerWritesThroughKitLogger(t *testing.T) {
	var buf bytes.Buffer
	l := gooseLogger{logger: log.NewLogfmtLogger(&buf)}
	l.Printf("OK %s", "00001_accounts.sql")
	if !strings.Contains(buf.String(), "OK 00001_accounts.sql") {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
}
