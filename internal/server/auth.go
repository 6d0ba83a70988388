package server

import (
	"database/sql"
	"net/http"

	"agendaprint/internal/store"
)

const authRealm = "agendaprint"

func (s *Server) requireAuthOr401(w http.ResponseWriter, r *http.Request) (store.User, bool) {
	if u, ok := s.authenticateBasic(r); ok {
		return u, true
	}
	setAuthChallenge(w)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return store.User{}, false
}

func (s *Server) authenticateBasic(r *http.Request) (store.User, bool) {
	if s == nil || s.Store == nil || r == nil {
		return store.User{}, false
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user == "" {
		return store.User{}, false
	}
	var result store.User
	err := s.Store.WithTx(r.Context(), true, func(tx *sql.Tx) error {
		u, err := s.Store.VerifyUser(r.Context(), tx, user, pass)
		if err != nil {
			return err
		}
		result = u
		return nil
	})
	if err != nil {
		return store.User{}, false
	}
	return result, true
}

func setAuthChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+authRealm+`"`)
}
