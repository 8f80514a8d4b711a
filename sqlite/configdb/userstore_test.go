package configdb

import (
	"testing"

	"github.com/jasonish/evecore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Setup(t *testing.T) *UserStore {
	db, err := NewConfigDB(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db.DB)
}

func TestUserNotExist(t *testing.T) {
	userstore := Setup(t)

	_, err := userstore.FindByUsername("no-user")
	assert.Equal(t, err.Error(), "username does not exist")
}

func TestUserAdd(t *testing.T) {
	var err error

	userstore := Setup(t)

	newUser := core.User{}

	_, err = userstore.AddUser(newUser, "")
	assert.NotNil(t, err)

	// Add a valid user.
	username := "test-newUser"
	newUser.Username = username
	_, err = userstore.AddUser(newUser, "password")
	assert.Nil(t, err)

	user, err := userstore.FindByUsername(username)
	assert.Nil(t, err)
	assert.Equal(t, user.Username, username)
	assert.True(t, user.IsValid())

	// Usernames are unique.
	_, err = userstore.AddUser(newUser, "password")
	assert.NotNil(t, err)
}

func TestCheckPassword(t *testing.T) {
	var err error

	userstore := Setup(t)

	username := "username"
	password := "password"

	user := core.User{
		Username: username,
	}
	_, err = userstore.AddUser(user, password)
	assert.Nil(t, err)

	// Check for good password.
	user, err = userstore.FindByUsernamePassword(username, password)
	assert.Nil(t, err)
	assert.Equal(t, user.Username, username)

	// Check for bad password.
	user, err = userstore.FindByUsernamePassword(username, "bad")
	assert.Equal(t, ErrBadPassword, err)
	assert.Equal(t, "", user.Username)

	require.Nil(t, userstore.UpdatePassword(username, "new"))
	_, err = userstore.FindByUsernamePassword(username, "new")
	assert.Nil(t, err)
}

func TestDeleteAndList(t *testing.T) {
	userstore := Setup(t)

	_, err := userstore.AddUser(core.User{Username: "b"}, "")
	require.Nil(t, err)
	_, err = userstore.AddUser(core.User{Username: "a", Email: "a@example.com"}, "x")
	require.Nil(t, err)

	users, err := userstore.FindAll()
	require.Nil(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].Username)
	assert.Equal(t, "a@example.com", users[0].Email)

	_, err = userstore.FindByUsernamePassword("b", "anything")
	assert.Equal(t, ErrNoPassword, err)

	require.Nil(t, userstore.DeleteUser("b"))
	assert.Equal(t, ErrNoUsername, userstore.DeleteUser("b"))
}
