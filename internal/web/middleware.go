package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayoubbns/vinscan/internal/domain"
)

type contextKey string

const operatorKey contextKey = "operator"

// authenticate resolves the bearer token and loads the operator fresh from
// the store, so a permission change or deletion applies to the next request.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		op, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), operatorKey, op)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requirePermission(capability string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op := operatorFrom(r.Context())
		if op == nil || !op.Permissions.Has(capability) {
			writeError(w, http.StatusForbidden, "permission denied")
			return
		}
		next(w, r)
	}
}

func operatorFrom(ctx context.Context) *domain.Operator {
	op, _ := ctx.Value(operatorKey).(*domain.Operator)
	return op
}
