package sqlxrepos

import (
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

type userRow struct {
	ID           int       `db:"id"`
	Name         string    `db:"name"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	IsActive     bool      `db:"is_active"`
	Role         string    `db:"role"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email,
		IsActive:     row.IsActive,
		Role:         row.Role,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin.Time,
	}
}

func (repo *userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	query := `SELECT username, email FROM "user" WHERE (username = $1 OR email = $2)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		inQuery, inArgs, err := sqlx.In(`SELECT username, email FROM "user" WHERE (username = ? OR email = ?) AND id NOT IN (?)`, username, email, ids)
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
		query = repo.db.Rebind(inQuery)
		args = inArgs
	}

	rows, err := repo.db.Queryx(query, args...)
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var uname, mail string
		if err = rows.Scan(&uname, &mail); err != nil {
			return errors.Wrap(err, "checking username uniqueness")
		}
		if username != "" && uname == username {
			return user.ErrUsernameExists
		}
		if email != "" && mail == email {
			return user.ErrEmailExists
		}
	}
	return rows.Err()
}

func (repo *userRepository) CreateUser(usr user.User) (user.User, error) {
	query := `
INSERT INTO "user" (name, username, email, is_active, role, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	err := repo.db.QueryRow(
		query,
		usr.Name, usr.Username, usr.Email, usr.IsActive, usr.Role, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	).Scan(&usr.ID)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "email") {
				return user.User{}, user.ErrEmailExists
			}
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers() ([]user.User, error) {
	var rows []userRow
	if err := repo.db.Select(&rows, `SELECT * FROM "user" ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return rowsToUsers(rows), nil
}

func (repo *userRepository) GetUserByID(id int) (user.User, error) {
	return repo.getUser(`SELECT * FROM "user" WHERE id = $1`, id)
}

func (repo *userRepository) GetUsersByID(ids []int) ([]user.User, error) {
	if len(ids) == 0 {
		return []user.User{}, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM "user" WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}
	var rows []userRow
	if err = repo.db.Select(&rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return rowsToUsers(rows), nil
}

func (repo *userRepository) GetUserByUsername(username string) (user.User, error) {
	return repo.getUser(`SELECT * FROM "user" WHERE username = $1`, username)
}

func (repo *userRepository) GetUserByEmail(email string) (user.User, error) {
	return repo.getUser(`SELECT * FROM "user" WHERE email = $1`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(username string) (user.User, error) {
	return repo.getUser(`SELECT * FROM "user" WHERE username = $1 OR email = $1`, username)
}

func (repo *userRepository) FilterUsers(filter user.QueryFilter) ([]user.User, error) {
	query := `SELECT * FROM "user" WHERE 1=1`
	var (
		args       []interface{}
		conditions string
	)
	add := func(cond string, vals ...interface{}) {
		conditions += cond
		args = append(args, vals...)
	}
	if filter.Search != "" {
		add(` AND (name ILIKE '%' || ? || '%' OR username ILIKE '%' || ? || '%' OR email ILIKE '%' || ? || '%')`,
			filter.Search, filter.Search, filter.Search)
	}
	if filter.Role != "" {
		add(` AND role = ?`, filter.Role)
	}
	if filter.IsActive != nil {
		add(` AND is_active = ?`, *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		add(` AND created_at >= ?`, filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		add(` AND created_at <= ?`, filter.CreatedTo.UTC())
	}

	var rows []userRow
	if err := repo.db.Select(&rows, repo.db.Rebind(query+conditions+` ORDER BY id`), args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return rowsToUsers(rows), nil
}

func (repo *userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	query := `
UPDATE "user"
SET name          = COALESCE(NULLIF($2, ''), name),
    username      = COALESCE(NULLIF($3, ''), username),
    email         = COALESCE(NULLIF($4, ''), email),
    role          = COALESCE(NULLIF($5, ''), role),
    password_hash = COALESCE($6, password_hash),
    is_active     = COALESCE($7, is_active),
    updated_at    = $8
WHERE id = $1`
	var active interface{}
	if isActive != nil {
		active = *isActive
	}
	var hash interface{}
	if usr.PasswordHash != nil {
		hash = usr.PasswordHash
	}
	res, err := repo.db.Exec(query, usr.ID, usr.Name, usr.Username, usr.Email, usr.Role, hash, active, usr.UpdatedAt)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(usr.ID)
}

func (repo *userRepository) DeleteUsersByID(ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.Exec(repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (repo *userRepository) getUser(query string, args ...interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.Get(&row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func rowsToUsers(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users
}
