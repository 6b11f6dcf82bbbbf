package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strp(s string) *string { return &s }

func TestIsUsernameCandidate(t *testing.T) {
	assert.True(t, isUsernameCandidate(strp("email"), strp(""), strp(""), strp("")))
	assert.True(t, isUsernameCandidate(strp("text"), strp("brukernavn"), strp(""), strp("")))
	assert.True(t, isUsernameCandidate(strp(""), strp(""), strp("login-id"), strp("")))
	assert.False(t, isUsernameCandidate(strp("password"), strp(""), strp(""), strp("")))
}

func TestIsPasswordCandidate(t *testing.T) {
	assert.True(t, isPasswordCandidate(strp("password"), strp(""), strp(""), strp("")))
	assert.True(t, isPasswordCandidate(strp("text"), strp("pwd"), strp(""), strp("")))
	assert.False(t, isPasswordCandidate(strp("text"), strp("search"), strp(""), strp("")))
}

func TestContainsAny(t *testing.T) {
	assert.True(t, containsAny("UserEmail", []string{"email"}))
	assert.False(t, containsAny("search", []string{"user", "email"}))
}

func TestConfigNavigationTimeoutDefault(t *testing.T) {
	c := Config{}
	assert.Equal(t, int64(30), c.navigationTimeout().Milliseconds()/1000)
}

func TestIsLoginPage(t *testing.T) {
	assert.True(t, isLoginPage("<html><body><form><h1>Logg inn</h1><input type=password></form></body></html>"))
	assert.True(t, isLoginPage("<html><body>Please sign in</body></html>"))
	assert.False(t, isLoginPage("<html><body>Welcome back, logout</body></html>"))
}
