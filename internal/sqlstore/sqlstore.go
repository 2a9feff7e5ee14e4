// Package sqlstore keeps claims and principals in SQLite. It backs the
// standalone server and the tests.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/kylejryan/claims-portal/internal/models"
)

// timeLayout is fixed-width so that text comparison orders instants correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS claims (
	id               TEXT PRIMARY KEY,
	claimant_name    TEXT NOT NULL,
	claimant_email   TEXT NOT NULL,
	claim_amount     REAL NOT NULL,
	description      TEXT NOT NULL,
	document_ref     TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	submission_date  TEXT NOT NULL,
	approved_amount  REAL,
	insurer_comments TEXT
);
CREATE INDEX IF NOT EXISTS idx_claims_email ON claims(claimant_email, submission_date);
CREATE INDEX IF NOT EXISTS idx_claims_submitted ON claims(submission_date);

CREATE TABLE IF NOT EXISTS principals (
	id    TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	role  TEXT NOT NULL
);
`

// Store implements the claim and principal stores on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts c under a fresh ULID and returns the id.
func (s *Store) Create(ctx context.Context, c models.Claim) (string, error) {
	id := ulid.Make().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claims (id, claimant_name, claimant_email, claim_amount, description,
			document_ref, status, submission_date, approved_amount, insurer_comments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.ClaimantName, c.ClaimantEmail, c.ClaimAmount, c.Description,
		c.DocumentRef, string(c.Status), formatTime(c.SubmissionDate),
		nullFloat(c.ApprovedAmount), nullString(c.InsurerComments),
	)
	if err != nil {
		return "", fmt.Errorf("insert claim: %w", err)
	}
	return id, nil
}

// Get loads one claim.
func (s *Store) Get(ctx context.Context, id string) (models.Claim, error) {
	row := s.db.QueryRowContext(ctx, selectClaims+` WHERE id = ?`, id)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Claim{}, fmt.Errorf("claim %s: %w", id, models.ErrNotFound)
	}
	return c, err
}

// Find returns the claims matching f, most recent first.
func (s *Store) Find(ctx context.Context, f models.ClaimFilter) ([]models.Claim, error) {
	var (
		where []string
		args  []any
	)
	if f.ClaimantEmail != "" {
		where = append(where, "claimant_email = ?")
		args = append(args, models.NormalizeEmail(f.ClaimantEmail))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ClaimAmount != nil {
		where = append(where, "claim_amount = ?")
		args = append(args, *f.ClaimAmount)
	}
	if f.StartDate != nil {
		where = append(where, "submission_date >= ?")
		args = append(args, formatTime(*f.StartDate))
	}
	if f.EndDate != nil {
		where = append(where, "submission_date <= ?")
		args = append(args, formatTime(*f.EndDate))
	}

	q := selectClaims
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY submission_date DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	var out []models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update replaces the stored record for id with c. Identity, ownership and
// submission fields are taken from the stored row, not from c.
func (s *Store) Update(ctx context.Context, id string, c models.Claim) (models.Claim, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE claims SET claimant_name = ?, claim_amount = ?, description = ?, document_ref = ?,
			status = ?, approved_amount = ?, insurer_comments = ?
		WHERE id = ?`,
		c.ClaimantName, c.ClaimAmount, c.Description, c.DocumentRef,
		string(c.Status), nullFloat(c.ApprovedAmount), nullString(c.InsurerComments), id,
	)
	if err != nil {
		return models.Claim{}, fmt.Errorf("update claim %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Claim{}, fmt.Errorf("update claim %s: %w", id, err)
	}
	if n == 0 {
		return models.Claim{}, fmt.Errorf("claim %s: %w", id, models.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// GetPrincipal loads one principal.
func (s *Store) GetPrincipal(ctx context.Context, id string) (models.Principal, error) {
	var p models.Principal
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT id, email, role FROM principals WHERE id = ?`, id).
		Scan(&p.ID, &p.Email, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Principal{}, fmt.Errorf("principal %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("get principal %s: %w", id, err)
	}
	// Stored roles are not re-validated here; an unknown role simply matches no policy.
	p.Role = models.Role(role)
	return p, nil
}

// PutPrincipal inserts or replaces a principal.
func (s *Store) PutPrincipal(ctx context.Context, p models.Principal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, email, role) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email, role = excluded.role`,
		p.ID, models.NormalizeEmail(p.Email), string(p.Role))
	if err != nil {
		return fmt.Errorf("put principal %s: %w", p.ID, err)
	}
	return nil
}

const selectClaims = `SELECT id, claimant_name, claimant_email, claim_amount, description,
	document_ref, status, submission_date, approved_amount, insurer_comments FROM claims`

type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(sc scanner) (models.Claim, error) {
	var (
		c         models.Claim
		status    string
		submitted string
		approved  sql.NullFloat64
		comments  sql.NullString
	)
	err := sc.Scan(&c.ID, &c.ClaimantName, &c.ClaimantEmail, &c.ClaimAmount, &c.Description,
		&c.DocumentRef, &status, &submitted, &approved, &comments)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Claim{}, err
		}
		return models.Claim{}, fmt.Errorf("scan claim: %w", err)
	}
	c.Status = models.ClaimStatus(status)
	c.SubmissionDate, err = time.Parse(timeLayout, submitted)
	if err != nil {
		return models.Claim{}, fmt.Errorf("parse submission_date %q: %w", submitted, err)
	}
	if approved.Valid {
		v := approved.Float64
		c.ApprovedAmount = &v
	}
	if comments.Valid {
		v := comments.String
		c.InsurerComments = &v
	}
	return c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
