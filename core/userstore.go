package core

// User is a principal that can be attached to a session and recorded in
// event history.
type User struct {
	Id       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`

	// Anonymous users are not backed by a user store.
	Anonymous bool `json:"anonymous,omitempty"`
}

func NewAnonymousUser(username string) User {
	return User{Id: username, Username: username, Anonymous: true}
}

func (u User) IsValid() bool {
	return u.Id != "" && u.Username != ""
}

// UserStore holds the users allowed to log in with a username and
// password.
type UserStore interface {
	AddUser(user User, password string) (string, error)
	DeleteUser(username string) error
	FindAll() ([]User, error)
	FindByUsername(username string) (User, error)

	// FindByUsernamePassword returns an error if the user doesn't exist
	// or the password doesn't match.
	FindByUsernamePassword(username string, password string) (User, error)

	UpdatePassword(username string, password string) error
}
