// Package auth guards the control panel. There is a single operator account:
// a bcrypt hash supplied via the environment, no user table.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

const cookieName = "srtwatch_session"

const sessionTTL = 12 * time.Hour

var ErrBadCredentials = errors.New("invalid credentials")

type Store struct {
	sc           *securecookie.SecureCookie
	passwordHash string
}

func NewStore(hashKey, blockKey []byte, passwordHash string) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Store{sc: sc, passwordHash: passwordHash}
}

// HashPassword produces the value for PANEL_PASSWORD_HASH.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func (s *Store) Authenticate(password string) error {
	if bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)) != nil {
		return ErrBadCredentials
	}
	return nil
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request) error {
	val := map[string]any{"op": true, "v": 1}
	encoded, err := s.sc.Encode(cookieName, val)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) HasSession(r *http.Request) bool {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return false
	}
	val := map[string]any{}
	if err := s.sc.Decode(cookieName, c.Value, &val); err != nil {
		return false
	}
	op, ok := val["op"].(bool)
	return ok && op
}

func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.HasSession(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
