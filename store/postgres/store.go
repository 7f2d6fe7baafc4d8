package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/nickauth/store"
	"github.com/MrEthical07/nickauth/store/postgres/migrations"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	nicknameConstraint = "users_nickname_key"
	emailConstraint    = "users_email_lower_key"
)

const userColumns = `id, nickname, email, password_hash, role, is_active, login_attempts,
	lock_until, password_reset_token, password_reset_expires, last_login,
	password_changed_at, created_at, updated_at, version`

// ErrImmutableField is returned when an Update closure changes a field
// that is backed by a unique index.
var ErrImmutableField = errors.New("pgstore: identity fields are immutable")

// Store implements store.Store on PostgreSQL through database/sql and pgx.
type Store struct {
	db *sql.DB
}

// Open connects to dsn, verifies connectivity and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

// New wraps an existing handle. Migrations are not applied.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

func (s *Store) FindByID(ctx context.Context, id string) (*store.User, error) {
	return s.findOne(ctx, s.db, `id = $1`, id)
}

func (s *Store) FindByNickname(ctx context.Context, nickname string) (*store.User, error) {
	return s.findOne(ctx, s.db, `nickname = $1`, nickname)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	if email == "" {
		return nil, store.ErrNotFound
	}
	return s.findOne(ctx, s.db, `lower(email) = lower($1)`, email)
}

func (s *Store) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*store.User, error) {
	if tokenHash == "" {
		return nil, store.ErrNotFound
	}
	return s.findOne(ctx, s.db, `password_reset_token = $1 AND password_reset_expires > $2`, tokenHash, now)
}

func (s *Store) findOne(ctx context.Context, db DBTX, where string, args ...any) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	u, err := scanUser(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapErr(err)
	}
	if err := loadRefreshTokens(ctx, db, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Insert writes the user row and any initial refresh tokens in one transaction.
func (s *Store) Insert(ctx context.Context, u *store.User) (*store.User, error) {
	if u == nil || u.ID == "" || u.Nickname == "" {
		return nil, fmt.Errorf("pgstore: insert requires id and nickname")
	}
	rec := u.Clone()
	if rec.Version == 0 {
		rec.Version = 1
	}

	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			rec.ID, rec.Nickname, nullString(rec.Email), rec.PasswordHash, string(rec.Role), rec.IsActive,
			rec.LoginAttempts, nullTime(rec.LockUntil), nullString(rec.PasswordResetToken),
			nullTime(rec.PasswordResetExpires), nullTime(rec.LastLogin), nullTime(rec.PasswordChangedAt),
			rec.CreatedAt, rec.UpdatedAt, rec.Version,
		)
		if err != nil {
			return err
		}
		return insertRefreshTokens(ctx, tx, rec.ID, rec.RefreshTokens)
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return rec, nil
}

// Update locks the row with SELECT ... FOR UPDATE, applies fn and writes
// the result. Serialization failures and deadlocks are retried.
func (s *Store) Update(ctx context.Context, id string, fn store.MutateFunc) (*store.User, error) {
	for i := 0; i < store.MaxUpdateRetries; i++ {
		var updated *store.User
		var abort error

		err := withTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
			current, err := s.findOne(ctx, tx, `id = $1 FOR UPDATE`, id)
			if err != nil {
				return err
			}

			next := current.Clone()
			if err := fn(next); err != nil {
				abort = err
				return err
			}
			if next.ID != current.ID || next.Nickname != current.Nickname || !strings.EqualFold(next.Email, current.Email) {
				abort = ErrImmutableField
				return abort
			}
			next.Version = current.Version + 1

			_, err = tx.ExecContext(ctx,
				`UPDATE users SET password_hash = $2, role = $3, is_active = $4, login_attempts = $5,
				 lock_until = $6, password_reset_token = $7, password_reset_expires = $8,
				 last_login = $9, updated_at = $10, version = $11, password_changed_at = $12
				 WHERE id = $1`,
				next.ID, next.PasswordHash, string(next.Role), next.IsActive, next.LoginAttempts,
				nullTime(next.LockUntil), nullString(next.PasswordResetToken), nullTime(next.PasswordResetExpires),
				nullTime(next.LastLogin), next.UpdatedAt, next.Version, nullTime(next.PasswordChangedAt),
			)
			if err != nil {
				return err
			}

			if !sameTokens(current.RefreshTokens, next.RefreshTokens) {
				if _, err := tx.ExecContext(ctx, `DELETE FROM user_refresh_tokens WHERE user_id = $1`, next.ID); err != nil {
					return err
				}
				if err := insertRefreshTokens(ctx, tx, next.ID, next.RefreshTokens); err != nil {
					return err
				}
			}

			updated = next
			return nil
		})

		if abort != nil {
			return nil, abort
		}
		if err != nil {
			if retryable(err) {
				continue
			}
			return nil, mapErr(err)
		}
		return updated, nil
	}
	return nil, store.ErrUpdateContention
}

// List returns one page ordered by creation time, newest first. Refresh
// tokens are not loaded for listed users.
func (s *Store) List(ctx context.Context, filter store.ListFilter) ([]*store.User, int, error) {
	filter = filter.Normalize()

	var conds []string
	var args []any
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	users := make([]*store.User, 0, filter.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, mapErr(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr(err)
	}
	return users, total, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, is_active, count(*) FROM users GROUP BY role, is_active`)
	if err != nil {
		return store.Stats{}, mapErr(err)
	}
	defer rows.Close()

	stats := store.NewStats()
	for rows.Next() {
		var role string
		var active bool
		var n int
		if err := rows.Scan(&role, &active, &n); err != nil {
			return store.Stats{}, mapErr(err)
		}
		stats.Total += n
		stats.ByRole[role] += n
		if active {
			stats.ByStatus["active"] += n
		} else {
			stats.ByStatus["inactive"] += n
		}
	}
	if err := rows.Err(); err != nil {
		return store.Stats{}, mapErr(err)
	}
	return stats, nil
}

// Delete removes the user; refresh tokens cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var (
		u                                     store.User
		email, resetToken                     sql.NullString
		role                                  string
		lockUntil, resetExpires, lastLoginRaw sql.NullTime
		passwordChanged                       sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Nickname, &email, &u.PasswordHash, &role, &u.IsActive, &u.LoginAttempts,
		&lockUntil, &resetToken, &resetExpires, &lastLoginRaw,
		&passwordChanged, &u.CreatedAt, &u.UpdatedAt, &u.Version,
	)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Role = store.Role(role)
	u.PasswordResetToken = resetToken.String
	u.LockUntil = timePtr(lockUntil)
	u.PasswordResetExpires = timePtr(resetExpires)
	u.LastLogin = timePtr(lastLoginRaw)
	u.PasswordChangedAt = timePtr(passwordChanged)
	return &u, nil
}

func loadRefreshTokens(ctx context.Context, db DBTX, u *store.User) error {
	rows, err := db.QueryContext(ctx,
		`SELECT token_hash, created_at, expires_at FROM user_refresh_tokens
		 WHERE user_id = $1 ORDER BY seq`, u.ID)
	if err != nil {
		return mapErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var t store.RefreshToken
		if err := rows.Scan(&t.TokenHash, &t.CreatedAt, &t.ExpiresAt); err != nil {
			return mapErr(err)
		}
		u.RefreshTokens = append(u.RefreshTokens, t)
	}
	return mapErr(rows.Err())
}

// insertRefreshTokens writes tokens in slice order; seq preserves that
// order on reload.
func insertRefreshTokens(ctx context.Context, tx DBTX, userID string, tokens []store.RefreshToken) error {
	for _, t := range tokens {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_refresh_tokens (user_id, token_hash, created_at, expires_at)
			 VALUES ($1, $2, $3, $4)`,
			userID, t.TokenHash, t.CreatedAt, t.ExpiresAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func sameTokens(a, b []store.RefreshToken) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].TokenHash != b[i].TokenHash || !a[i].ExpiresAt.Equal(b[i].ExpiresAt) {
			return false
		}
	}
	return true
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUnavailable) || errors.Is(err, store.ErrConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case nicknameConstraint:
			return &store.ConflictError{Field: store.FieldNickname}
		case emailConstraint:
			return &store.ConflictError{Field: store.FieldEmail}
		}
	}
	return fmt.Errorf("%w: db error: %v", store.ErrUnavailable, err)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ store.Store = (*Store)(nil)
