// Package store provides SQLite-backed storage for pending payment requests.
package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Status represents the lifecycle state of a pending request.
type Status string

const (
	// StatusPending indicates the request awaits an admin decision.
	StatusPending Status = "pending"
	// StatusApproved indicates the account was enabled. Terminal.
	StatusApproved Status = "approved"
	// StatusRejected indicates the request was turned down. Terminal.
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status allows no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

var (
	// ErrDuplicateID is returned by Put when the request id already exists.
	ErrDuplicateID = errors.New("request id already exists")
	// ErrNotFound is returned when no request matches.
	ErrNotFound = errors.New("request not found")
	// ErrAmbiguous is returned when correlation fields match more than one request.
	ErrAmbiguous = errors.New("correlation matches multiple requests")
	// ErrInvalidTransition is returned when updating a terminal request.
	ErrInvalidTransition = errors.New("request already decided")
)

// Request is a durable record of a payment/top-up submission awaiting
// admin approval. Credentials are immutable once created; the plaintext
// password is persisted here because the hotspot controller needs it
// verbatim, but it must never reach shared logs.
type Request struct {
	ID            string
	Username      string
	Password      string
	Package       string
	ContactNumber string
	ProofRef      string
	SourceAddr    string
	Status        Status
	CreatedAt     time.Time
	DecidedAt     *time.Time
}

// Correlation carries the fields embedded in an approval control that
// identify the originating request when no id is present.
type Correlation struct {
	RequestID     string
	Username      string
	ContactNumber string
	Package       string
}

// Store persists pending requests in SQLite.
type Store struct {
	conn *sql.DB
}

// Open opens the SQLite database at path and creates tables if needed.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &Store{conn: conn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func createTables(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS pending_requests (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			package TEXT NOT NULL,
			contact_number TEXT NOT NULL,
			proof_ref TEXT DEFAULT '',
			source_addr TEXT DEFAULT 'unknown',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			decided_at DATETIME
		);

		CREATE INDEX IF NOT EXISTS idx_requests_status ON pending_requests(status);
		CREATE INDEX IF NOT EXISTS idx_requests_contact ON pending_requests(contact_number);
		CREATE INDEX IF NOT EXISTS idx_requests_username ON pending_requests(username);
	`)
	return err
}

// Put persists a new request. The primary key makes the insert atomic
// per id under concurrent submissions.
func (s *Store) Put(r *Request) error {
	_, err := s.conn.Exec(`
		INSERT INTO pending_requests (id, username, password, package, contact_number, proof_ref, source_addr, status, created_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Username, r.Password, r.Package, r.ContactNumber, r.ProofRef, r.SourceAddr, r.Status, r.CreatedAt, r.DecidedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

// Get retrieves a request by id.
func (s *Store) Get(id string) (*Request, error) {
	row := s.conn.QueryRow(`
		SELECT id, username, password, package, contact_number, proof_ref, source_addr, status, created_at, decided_at
		FROM pending_requests WHERE id = ?
	`, id)
	return scanRequest(row)
}

// FindByCorrelation resolves an approval event to exactly one request.
// A request id wins outright; otherwise the remaining fields must match
// a single record. More than one match is ErrAmbiguous: the caller must
// not guess.
func (s *Store) FindByCorrelation(c Correlation) (*Request, error) {
	if c.RequestID != "" {
		return s.Get(c.RequestID)
	}

	query := `
		SELECT id, username, password, package, contact_number, proof_ref, source_addr, status, created_at, decided_at
		FROM pending_requests WHERE 1=1`
	var args []interface{}

	if c.Username != "" {
		query += ` AND username = ?`
		args = append(args, c.Username)
	}
	if c.ContactNumber != "" {
		query += ` AND contact_number = ?`
		args = append(args, c.ContactNumber)
	}
	if c.Package != "" {
		query += ` AND package = ?`
		args = append(args, c.Package)
	}
	if len(args) == 0 {
		return nil, ErrNotFound
	}

	rows, err := s.conn.Query(query+` LIMIT 2`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*Request
	for rows.Next() {
		r, err := scanRequestRows(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, ErrAmbiguous
	}
}

// UpdateStatus transitions a request out of pending. The WHERE clause
// acts as a compare-and-set, so concurrent or duplicate decisions for
// the same request cannot both succeed.
func (s *Store) UpdateStatus(id string, newStatus Status) error {
	now := time.Now()
	res, err := s.conn.Exec(`
		UPDATE pending_requests SET status = ?, decided_at = ? WHERE id = ? AND status = ?
	`, newStatus, now, id, StatusPending)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a missing record from an already-decided one.
		if _, err := s.Get(id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

// List returns requests, optionally filtered by status, newest first.
func (s *Store) List(status Status) ([]*Request, error) {
	var rows *sql.Rows
	var err error

	if status != "" {
		rows, err = s.conn.Query(`
			SELECT id, username, password, package, contact_number, proof_ref, source_addr, status, created_at, decided_at
			FROM pending_requests WHERE status = ? ORDER BY created_at DESC
		`, status)
	} else {
		rows, err = s.conn.Query(`
			SELECT id, username, password, package, contact_number, proof_ref, source_addr, status, created_at, decided_at
			FROM pending_requests ORDER BY created_at DESC
		`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		r, err := scanRequestRows(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// CountPending returns the number of undecided requests.
func (s *Store) CountPending() (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM pending_requests WHERE status = ?`, StatusPending).Scan(&n)
	return n, err
}

func scanRequest(row *sql.Row) (*Request, error) {
	r := &Request{}
	var proofRef, sourceAddr sql.NullString
	var decidedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Username, &r.Password, &r.Package, &r.ContactNumber, &proofRef, &sourceAddr, &r.Status, &r.CreatedAt, &decidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if proofRef.Valid {
		r.ProofRef = proofRef.String
	}
	if sourceAddr.Valid {
		r.SourceAddr = sourceAddr.String
	}
	if decidedAt.Valid {
		r.DecidedAt = &decidedAt.Time
	}
	return r, nil
}

func scanRequestRows(rows *sql.Rows) (*Request, error) {
	r := &Request{}
	var proofRef, sourceAddr sql.NullString
	var decidedAt sql.NullTime
	if err := rows.Scan(&r.ID, &r.Username, &r.Password, &r.Package, &r.ContactNumber, &proofRef, &sourceAddr, &r.Status, &r.CreatedAt, &decidedAt); err != nil {
		return nil, err
	}
	if proofRef.Valid {
		r.ProofRef = proofRef.String
	}
	if sourceAddr.Valid {
		r.SourceAddr = sourceAddr.String
	}
	if decidedAt.Valid {
		r.DecidedAt = &decidedAt.Time
	}
	return r, nil
}
