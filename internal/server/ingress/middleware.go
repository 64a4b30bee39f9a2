package ingress

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/dropvault/internal/server/auth"
)

// drainMiddleware executes every due purge task before the request proper is
// handled. A drain failure is logged and the request continues: revocation
// retries on the next interaction, the current requester is not punished.
func (s *Server) drainMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results, err := s.purge.DrainDue(r.Context(), s.now())
		if err != nil {
			s.logger.Warn(r.Context(), "drain failed", "error", err.Error())
		}
		if len(results) > 0 {
			s.logger.Info(r.Context(), "drained due tasks", "count", len(results))
		}
		next.ServeHTTP(w, r)
	})
}

// operatorMiddleware requires a valid bearer token on management routes.
func (s *Server) operatorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if _, err := auth.GetOperatorIDFromToken(token, s.secretKey); err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
