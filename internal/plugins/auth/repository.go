package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/keyxmakerx/parlor/internal/apperror"
	"github.com/keyxmakerx/parlor/internal/config"
)

// UserRepository defines the data access contract for user operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)

	// UpsertByExternalID creates the account on first login with defaults,
	// and applies stats on every call. A single conditional write keeps
	// concurrent logins of the same identity from creating two rows.
	UpsertByExternalID(ctx context.Context, defaults ExternalUserDefaults, stats LoginStats) (*User, error)

	// InsertLocalUser returns ErrDuplicateUser when the username is taken.
	// The UNIQUE index on users.username is the authority.
	InsertLocalUser(ctx context.Context, username, passwordHash string) (*User, error)

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// dialect holds the statements that differ between MariaDB and SQLite.
type dialect struct {
	upsertExternal    string
	isUniqueViolation func(error) bool
}

var mysqlDialect = dialect{
	upsertExternal: `INSERT INTO users (id, provider, external_id, display_name, photo_url, email, created_on, last_login, login_count)
	                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	                 ON DUPLICATE KEY UPDATE last_login = VALUES(last_login),
	                                         login_count = login_count + VALUES(login_count)`,
	isUniqueViolation: func(err error) bool {
		var me *mysql.MySQLError
		return errors.As(err, &me) && me.Number == 1062 // ER_DUP_ENTRY
	},
}

var sqliteDialect = dialect{
	upsertExternal: `INSERT INTO users (id, provider, external_id, display_name, photo_url, email, created_on, last_login, login_count)
	                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	                 ON CONFLICT (provider, external_id) DO UPDATE SET
	                     last_login = excluded.last_login,
	                     login_count = users.login_count + excluded.login_count`,
	isUniqueViolation: func(err error) bool {
		var se *sqlite.Error
		if !errors.As(err, &se) {
			return false
		}
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"))
	},
}

// userColumns is the column list every SELECT scans with scanUser.
const userColumns = `id, username, password_hash, provider, external_id,
	display_name, photo_url, email, created_on, last_login, login_count`

// userRepository implements UserRepository with hand-written SQL.
type userRepository struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewUserRepository creates a user repository for the given driver
// ("mysql" or "sqlite") backed by the given DB pool.
func NewUserRepository(db *sql.DB, driver string) UserRepository {
	d := mysqlDialect
	if driver == config.DriverSQLite {
		d = sqliteDialect
	}
	return &userRepository{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FindByUsername retrieves a local user by username.
// Returns apperror.NotFound if no user exists with this username.
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by username: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

// UpsertByExternalID inserts or bumps the (provider, external_id) row in
// one statement, then reads back whichever row won.
func (r *userRepository) UpsertByExternalID(ctx context.Context, defaults ExternalUserDefaults, stats LoginStats) (*User, error) {
	if defaults.ExternalID == "" {
		return nil, fmt.Errorf("upsert requires an external id")
	}
	createdOn := defaults.CreatedOn
	if createdOn.IsZero() {
		createdOn = r.now()
	}

	_, err := r.db.ExecContext(ctx, r.dialect.upsertExternal,
		uuid.NewString(),
		defaults.Provider,
		defaults.ExternalID,
		nullString(defaults.DisplayName),
		nullString(defaults.PhotoURL),
		nullString(defaults.Email),
		createdOn.UTC(),
		stats.LastLogin.UTC(),
		stats.LoginIncrement,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting external user: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE provider = ? AND external_id = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, defaults.Provider, defaults.ExternalID))
	if err != nil {
		return nil, fmt.Errorf("reading upserted user: %w", err)
	}
	return user, nil
}

// InsertLocalUser inserts a username/password account.
func (r *userRepository) InsertLocalUser(ctx context.Context, username, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedOn:    r.now(),
	}

	query := `INSERT INTO users (id, username, password_hash, created_on, login_count)
	          VALUES (?, ?, ?, ?, 0)`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.PasswordHash, user.CreatedOn)
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return user, nil
}

// UpdateLastLogin stamps last_login for the given user.
func (r *userRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login = ? WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, at.UTC(), id); err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// Delete removes a user. Sessions that still reference the id degrade to
// unauthenticated on their next request.
func (r *userRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}
	return nil
}

// --- Helpers ---

// scanUser scans one row selected with userColumns.
func scanUser(row *sql.Row) (*User, error) {
	var u User
	var username, passwordHash, provider, extID sql.NullString
	var displayName, photoURL, email sql.NullString
	var lastLogin sql.NullTime

	err := row.Scan(
		&u.ID,
		&username,
		&passwordHash,
		&provider,
		&extID,
		&displayName,
		&photoURL,
		&email,
		&u.CreatedOn,
		&lastLogin,
		&u.LoginCount,
	)
	if err != nil {
		return nil, err
	}

	u.Username = username.String
	u.PasswordHash = passwordHash.String
	u.Provider = provider.String
	u.ExternalID = extID.String
	u.DisplayName = displayName.String
	u.PhotoURL = photoURL.String
	u.Email = email.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
