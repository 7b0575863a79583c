package httpapi

import (
	"net/http"
	"strings"
)

// originSet matches browser origins against the configured allow-list. An empty list
// or "*" allows every origin.
type originSet struct {
	all     bool
	allowed map[string]struct{}
}

func newOriginSet(origins []string) originSet {
	s := originSet{all: len(origins) == 0, allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "*" {
			s.all = true
		}
		s.allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return s
}

func (s originSet) allows(origin string) bool {
	if s.all {
		return true
	}
	_, ok := s.allowed[strings.TrimRight(origin, "/")]
	return ok
}

// CORS allows browser clients from origins (or any origin for "*") and answers
// preflight requests.
func CORS(origins []string, next http.Handler) http.Handler {
	set := newOriginSet(origins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case set.all:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && set.allows(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Trace-ID, traceparent")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
