package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/model"
)

const identityColumns = `id, external_auth_id, name, email, credential_hash, external_profile_url,
	has_voted, voted_for, reset_token_hash, reset_token_expiry, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*model.Identity, error) {
	var (
		u           model.Identity
		externalID  sql.NullString
		votedFor    sql.NullString
		resetHash   sql.NullString
		resetExpiry sql.NullInt64
		hasVoted    int
	)
	err := row.Scan(
		&u.ID,
		&externalID,
		&u.Name,
		&u.Email,
		&u.CredentialHash,
		&u.ExternalProfileURL,
		&hasVoted,
		&votedFor,
		&resetHash,
		&resetExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.ExternalAuthID = externalID.String
	u.HasVoted = hasVoted != 0
	u.VotedFor = votedFor.String
	u.ResetTokenHash = resetHash.String
	if resetExpiry.Valid {
		t := time.Unix(resetExpiry.Int64, 0).UTC()
		u.ResetTokenExpiry = &t
	}
	return &u, nil
}

// CreateIdentity inserts a new identity. The email UNIQUE constraint is the
// authority on duplicates; callers do not need to check first.
func (db *DB) CreateIdentity(ctx context.Context, u *model.Identity) error {
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, external_auth_id, name, email, credential_hash,
			external_profile_url, has_voted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		nullString(u.ExternalAuthID),
		u.Name,
		u.Email,
		u.CredentialHash,
		u.ExternalProfileURL,
		boolToInt(u.HasVoted),
		u.CreatedAt,
		u.UpdatedAt,
	)
	switch {
	case isUniqueViolation(err, "users.email"):
		return apperror.EmailTaken()
	case isUniqueViolation(err, "users.external_auth_id"):
		return apperror.Conflict("external account is already linked")
	case err != nil:
		return fmt.Errorf("sqlite: inserting identity: %w", err)
	}
	return nil
}

func (db *DB) getIdentity(ctx context.Context, where, arg string) (*model.Identity, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE `+where+` = ?`, arg)
	u, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", where, err)
	}
	return u, nil
}

// GetIdentityByID returns apperror.ErrNotFound if no identity has that ID.
func (db *DB) GetIdentityByID(ctx context.Context, id string) (*model.Identity, error) {
	return db.getIdentity(ctx, "id", id)
}

func (db *DB) GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error) {
	return db.getIdentity(ctx, "email", email)
}

func (db *DB) GetIdentityByExternalID(ctx context.Context, externalID string) (*model.Identity, error) {
	return db.getIdentity(ctx, "external_auth_id", externalID)
}

func (db *DB) LinkExternalID(ctx context.Context, id, externalID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET external_auth_id = ?, updated_at = ?
		 WHERE id = ? AND external_auth_id IS NULL`,
		externalID, time.Now().UTC(), id,
	)
	if isUniqueViolation(err, "users.external_auth_id") {
		return apperror.Conflict("external account is already linked")
	}
	if err != nil {
		return fmt.Errorf("sqlite: linking external id to %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: linking external id to %s: %w", id, err)
	}
	if n == 0 {
		return apperror.Conflict("identity already has an external account")
	}
	return nil
}

// UpdateExternalProfile sets the public profile URL. Last write wins.
func (db *DB) UpdateExternalProfile(ctx context.Context, id, profileURL string) (*model.Identity, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET external_profile_url = ?, updated_at = ? WHERE id = ?`,
		profileURL, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating profile of %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("user", id)
	}
	return db.GetIdentityByID(ctx, id)
}

// ListVoters joins on the ledger so the order is the order votes were cast.
func (db *DB) ListVoters(ctx context.Context) ([]model.Voter, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.name, u.external_profile_url
		 FROM votes v JOIN users u ON u.id = v.voter_id
		 ORDER BY v.cast_at, v.id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing voters: %w", err)
	}
	defer rows.Close()

	voters := []model.Voter{}
	for rows.Next() {
		var v model.Voter
		if err := rows.Scan(&v.Name, &v.ExternalProfileURL); err != nil {
			return nil, fmt.Errorf("sqlite: scanning voter: %w", err)
		}
		voters = append(voters, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating voters: %w", err)
	}
	return voters, nil
}

func (db *DB) SetResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = ?, reset_token_expiry = ?, updated_at = ? WHERE id = ?`,
		tokenHash, expiry.Unix(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: storing reset token for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// ConsumeResetToken is one UPDATE ... RETURNING, so two concurrent resets
// with the same token cannot both succeed.
func (db *DB) ConsumeResetToken(ctx context.Context, tokenHash, credentialHash string, now time.Time) (string, error) {
	var id string
	err := db.conn.QueryRowContext(ctx,
		`UPDATE users
		 SET credential_hash = ?, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = ?
		 WHERE reset_token_hash = ? AND reset_token_expiry > ?
		 RETURNING id`,
		credentialHash, now.UTC(), tokenHash, now.Unix(),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.InvalidToken()
		}
		return "", fmt.Errorf("sqlite: consuming reset token: %w", err)
	}
	return id, nil
}
