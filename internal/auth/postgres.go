package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"venuelink.org/internal/audit"
	"venuelink.org/internal/ids"
)

const pgUniqueViolation = "23505"

// PGStore implements UserStore and the audit sink on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var (
	_ UserStore  = (*PGStore)(nil)
	_ audit.Sink = (*PGStore)(nil)
)

// OpenPG opens a pooled connection for the credential and audit tables.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing handle (tests use sqlmock here).
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

const userColumns = `id, email, password_hash, role, coalesce(venue_id,''), active,
	email_verified, phone_verified, first_name, last_name, phone, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	var venueID any
	if u.VenueID != "" {
		venueID = u.VenueID
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, password_hash, role, venue_id, active,
			email_verified, phone_verified, first_name, last_name, phone, created_at, updated_at)
		values($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.ID, u.Email, u.PasswordHash, string(u.Role), venueID, u.Active,
		u.EmailVerified, u.PhoneVerified, u.FirstName, u.LastName, u.Phone,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=lower($1)`, email)
	return scanUser(row)
}

func (s *PGStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.VenueID, &u.Active,
		&u.EmailVerified, &u.PhoneVerified, &u.FirstName, &u.LastName, &u.Phone,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

// Append writes one audit entry. The table carries no update or delete
// path in the application.
func (s *PGStore) Append(ctx context.Context, entry *audit.Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log(id, occurred_at, correlation_id, subject_id, action,
			outcome, resource_type, resource_id, metadata)
		values($1, $2, $3, nullif($4,''), $5, $6, $7, nullif($8,''), $9)`,
		entry.ID, entry.OccurredAt, entry.CorrelationID, entry.SubjectID,
		entry.Action, entry.Outcome, entry.ResourceType, entry.ResourceID, meta,
	)
	return err
}

// RecentEntries returns the newest audit entries, newest first.
func (s *PGStore) RecentEntries(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, occurred_at, correlation_id, coalesce(subject_id,''), action,
			outcome, resource_type, coalesce(resource_id,''), metadata
		from audit_log order by occurred_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e    audit.Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.CorrelationID, &e.SubjectID,
			&e.Action, &e.Outcome, &e.ResourceType, &e.ResourceID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
