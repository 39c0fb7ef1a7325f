package auth

import (
	"strings"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
)

// SetupOAuth registers the Google provider and points gothic at the site's
// session store.
func SetupOAuth(store sessions.Store, key, secret, callbackBase string) {
	callback := strings.TrimRight(callbackBase, "/") + "/auth/google/callback"
	goth.UseProviders(google.New(key, secret, callback, "email", "profile"))
	gothic.Store = store
}

// ExternalUsername picks the account name for an OAuth user.
func ExternalUsername(u goth.User) string {
	if u.Email != "" {
		return strings.ToLower(u.Email)
	}
	if u.NickName != "" {
		return u.Provider + ":" + u.NickName
	}
	return u.Provider + ":" + u.UserID
}
