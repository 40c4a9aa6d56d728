package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockManager(t *testing.T, fsys fstest.MapFS) (*Manager, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewManager(db, fsys), mock, db
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_users.up.sql":     {Data: []byte("create table users (id text);")},
		"0001_users.down.sql":   {Data: []byte("drop table users;")},
		"0002_audit.up.sql":     {Data: []byte("create table audit_log (id text);\ncreate index a on audit_log(id);")},
		"0002_audit.down.sql":   {Data: []byte("drop table audit_log;")},
		"README.md":             {Data: []byte("not sql")},
		"notes/0003_skip.up.sq": {Data: []byte("wrong suffix")},
	}
	mgr, mock, _ := newMockManager(t, fsys)

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// 0001 is already applied, only 0002 runs.
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))

	mock.ExpectBegin()
	mock.ExpectExec(`create table audit_log`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create index a on audit_log`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0002_audit.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownRollsBackLastApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_users.up.sql":   {Data: []byte("create table users (id text);")},
		"0001_users.down.sql": {Data: []byte("drop table users;")},
	}
	mgr, mock, _ := newMockManager(t, fsys)

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations order by applied_at asc`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))

	mock.ExpectBegin()
	mock.ExpectExec(`drop table users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`delete from schema_migrations where name = \$1`).
		WithArgs("0001_users.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := mgr.Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownWithoutHistoryFails(t *testing.T) {
	mgr, mock, _ := newMockManager(t, fstest.MapFS{})

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations order by applied_at asc`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if err := mgr.Down(context.Background()); err == nil {
		t.Fatal("Down with empty history succeeded")
	}
}

func TestEmbeddedSchemaIsWellFormed(t *testing.T) {
	fsys := Schema()
	for _, name := range []string{
		"0001_users.up.sql", "0001_users.down.sql",
		"0002_audit_log.up.sql", "0002_audit_log.down.sql",
	} {
		if _, err := fsys.Open(name); err != nil {
			t.Fatalf("embedded schema missing %s: %v", name, err)
		}
	}
}
