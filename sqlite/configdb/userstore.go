package configdb

import (
	"database/sql"

	"github.com/jasonish/evecore/core"
	"github.com/pkg/errors"
	"github.com/satori/go.uuid"
	"golang.org/x/crypto/bcrypt"
)

const selectUsers = `select uuid, username, fullname, email from users`

var ErrNoUsername = errors.New("username does not exist")
var ErrNoPassword = errors.New("user has no password")
var ErrBadPassword = errors.New("bad password")

// UserStore is the core.UserStore for users held in the configuration
// database. Passwords are stored as bcrypt hashes.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{
		db: db,
	}
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func hashPassword(password string) (sql.NullString, error) {
	if password == "" {
		return sql.NullString{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "failed to hash password")
	}
	return nullString(string(hash)), nil
}

// scanUser reads a row selected with selectUsers.
func scanUser(row interface{ Scan(...interface{}) error }) (core.User, error) {
	var user core.User
	var fullname, email sql.NullString
	if err := row.Scan(&user.Id, &user.Username, &fullname, &email); err != nil {
		return core.User{}, err
	}
	user.FullName = fullname.String
	user.Email = email.String
	return user, nil
}

// execUser runs a statement that must change exactly the one user.
func (s *UserStore) execUser(action string, query string, args ...interface{}) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to %s", action)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoUsername
	}
	return nil
}

// AddUser adds a user returning its ID. A user without a password can't
// log in.
func (s *UserStore) AddUser(user core.User, password string) (string, error) {
	if user.Username == "" {
		return "", errors.New("username is required")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return "", err
	}

	id := uuid.NewV4().String()
	_, err = s.db.Exec(`insert into users (uuid, username, fullname, email, password)
	    values (?, ?, ?, ?, ?)`,
		id, user.Username, nullString(user.FullName), nullString(user.Email), hash)
	if err != nil {
		return "", errors.Wrap(err, "failed to insert user")
	}
	return id, nil
}

func (s *UserStore) FindByUsernamePassword(username string, password string) (core.User, error) {
	var hash sql.NullString
	err := s.db.QueryRow("select password from users where username = ?",
		username).Scan(&hash)
	if err == sql.ErrNoRows {
		return core.User{}, ErrNoUsername
	} else if err != nil {
		return core.User{}, errors.Wrap(err, "failed to query for user")
	}

	if password == "" || !hash.Valid {
		return core.User{}, ErrNoPassword
	}
	if bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(password)) != nil {
		return core.User{}, ErrBadPassword
	}

	return s.FindByUsername(username)
}

func (s *UserStore) FindByUsername(username string) (core.User, error) {
	user, err := scanUser(s.db.QueryRow(selectUsers+" where username = ?", username))
	if err == sql.ErrNoRows {
		return core.User{}, ErrNoUsername
	} else if err != nil {
		return core.User{}, errors.Wrap(err, "failed to query for user")
	}
	return user, nil
}

func (s *UserStore) FindAll() ([]core.User, error) {
	rows, err := s.db.Query(selectUsers + " order by username")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query database")
	}
	defer rows.Close()

	users := []core.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read user")
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *UserStore) DeleteUser(username string) error {
	return s.execUser("delete user", "delete from users where username = ?", username)
}

func (s *UserStore) UpdatePassword(username string, password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.execUser("update password",
		"update users set password = ? where username = ?", hash, username)
}
