package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireToken guards a route with the configured API token. An empty token
// leaves the route open.
func requireToken(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r, token) {
			writeUnauthorized(w)
			return
		}
		next(w, r)
	}
}

// requireTokenOrAccessKey admits the API token or, for a single recording,
// that recording's access key passed as ?key=.
func (s *apiServer) requireTokenOrAccessKey(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if bearerMatches(r, token) || s.accessKeyMatches(r) {
			next(w, r)
			return
		}
		writeUnauthorized(w)
	}
}

func (s *apiServer) accessKeyMatches(r *http.Request) bool {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		return false
	}
	rec, err := s.daemon.Recording(r.Context(), r.PathValue("id"))
	if err != nil || rec.AccessKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(rec.AccessKey)) == 1
}

func bearerMatches(r *http.Request, token string) bool {
	presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="voxtape"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}
