package postgres

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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*model.Identity, error) {
	var (
		u           model.Identity
		externalID  sql.NullString
		votedFor    sql.NullString
		resetHash   sql.NullString
		resetExpiry sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&externalID,
		&u.Name,
		&u.Email,
		&u.CredentialHash,
		&u.ExternalProfileURL,
		&u.HasVoted,
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
	u.VotedFor = votedFor.String
	u.ResetTokenHash = resetHash.String
	if resetExpiry.Valid {
		t := resetExpiry.Time
		u.ResetTokenExpiry = &t
	}
	return &u, nil
}

func (db *DB) CreateIdentity(ctx context.Context, u *model.Identity) error {
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, external_auth_id, name, email, credential_hash,
			external_profile_url, has_voted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID,
		nullString(u.ExternalAuthID),
		u.Name,
		u.Email,
		u.CredentialHash,
		u.ExternalProfileURL,
		u.HasVoted,
		u.CreatedAt,
		u.UpdatedAt,
	)
	switch {
	case isUniqueViolation(err, "users_email_key"):
		return apperror.EmailTaken()
	case isUniqueViolation(err, "users_external_auth_id_key"):
		return apperror.Conflict("external account is already linked")
	case err != nil:
		return fmt.Errorf("postgres: inserting identity: %w", err)
	}
	return nil
}

func (db *DB) getIdentity(ctx context.Context, column, arg string) (*model.Identity, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE `+column+` = $1`, arg)
	u, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", column, err)
	}
	return u, nil
}

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
		`UPDATE users SET external_auth_id = $1, updated_at = $2
		 WHERE id = $3 AND external_auth_id IS NULL`,
		externalID, time.Now().UTC(), id,
	)
	if isUniqueViolation(err, "users_external_auth_id_key") {
		return apperror.Conflict("external account is already linked")
	}
	if err != nil {
		return fmt.Errorf("postgres: linking external id to %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.Conflict("identity already has an external account")
	}
	return nil
}

func (db *DB) UpdateExternalProfile(ctx context.Context, id, profileURL string) (*model.Identity, error) {
	row := db.conn.QueryRowContext(ctx,
		`UPDATE users SET external_profile_url = $1, updated_at = $2 WHERE id = $3
		 RETURNING `+identityColumns,
		profileURL, time.Now().UTC(), id,
	)
	u, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: updating profile of %s: %w", id, err)
	}
	return u, nil
}

func (db *DB) ListVoters(ctx context.Context) ([]model.Voter, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.name, u.external_profile_url
		 FROM votes v JOIN users u ON u.id = v.voter_id
		 ORDER BY v.cast_at, v.id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing voters: %w", err)
	}
	defer rows.Close()

	voters := []model.Voter{}
	for rows.Next() {
		var v model.Voter
		if err := rows.Scan(&v.Name, &v.ExternalProfileURL); err != nil {
			return nil, fmt.Errorf("postgres: scanning voter: %w", err)
		}
		voters = append(voters, v)
	}
	return voters, rows.Err()
}

func (db *DB) SetResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = $1, reset_token_expiry = $2, updated_at = $3 WHERE id = $4`,
		tokenHash, expiry.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: storing reset token for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (db *DB) ConsumeResetToken(ctx context.Context, tokenHash, credentialHash string, now time.Time) (string, error) {
	var id string
	err := db.conn.QueryRowContext(ctx,
		`UPDATE users
		 SET credential_hash = $1, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = $2
		 WHERE reset_token_hash = $3 AND reset_token_expiry > $2
		 RETURNING id`,
		credentialHash, now.UTC(), tokenHash,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.InvalidToken()
		}
		return "", fmt.Errorf("postgres: consuming reset token: %w", err)
	}
	return id, nil
}
