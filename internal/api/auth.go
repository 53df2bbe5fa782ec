package api

import (
	"crypto/subtle"
	"math/rand/v2"
	"net/http"
	"strings"
)

// DefaultTaunts are returned, one at random, to callers with a wrong key.
var DefaultTaunts = []string{
	"You don't know the auth key. Do not mess with me!",
	"Stop it! That's not the valid auth key.",
	"You are wrong. I'm going to tell my dad, sucker.",
	"Auth key valid... meh, just kiddin'. You don't know it, do you?",
	"Why are you even trying, when you know that you don't know the auth key?",
	"Oh gosh, you failed so bad. I won't do anything for you.",
	"Murder, death, kill. Murder, death, kill! Attention, attention. Calling 911.",
	"I know what are you trying to do and it doesn't work. You screw it.",
	"Feeling like a hacker? Try another auth key, but be gentle.",
	"I feel sorry for you. You've tried some auth key and it does nothing.",
}

// AuthKeyParam is the query parameter accepted in place of a bearer token.
const AuthKeyParam = "auth-key"

// TokenAuth accepts requests carrying token either as "Authorization: Bearer
// <token>" or as the auth-key query parameter. An empty token rejects
// everything.
func TokenAuth(token string, taunts []string) func(http.Handler) http.Handler {
	if len(taunts) == 0 {
		taunts = DefaultTaunts
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := presentedToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "%s", taunts[rand.IntN(len(taunts))])
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedToken(r *http.Request) string {
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		return auth[len(prefix):]
	}
	return r.URL.Query().Get(AuthKeyParam)
}
