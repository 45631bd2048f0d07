package router

import (
	"net/http"
	"strings"

	"github.com/shandysiswandi/carepass/internal/pkg/config"
	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
)

func middlewareAuthentication(authenticate Authenticator, publicEndpoints map[string]map[string]struct{}) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s, ok := publicEndpoints[r.Method]; ok {
				if _, skip := s[matchedRoutePath(r)]; skip {
					next.ServeHTTP(w, r)
					return
				}
			}

			if authenticate == nil {
				writeJSON(w, errorResponse{Message: "Authentication required", Code: "unauthenticated"}, http.StatusUnauthorized)
				return
			}

			claims, err := authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if setter, ok := w.(interface{ SetError(error) }); ok {
					setter.SetError(err)
				}
				writeError(r.Context(), w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(jwt.SetAuth(r.Context(), claims)))
		})
	}
}

func middlewareMaintenance(cfg config.Config) Middleware {
	endpoints := make(map[string]struct{})
	if cfg != nil {
		for _, endpoint := range cfg.GetArray("app.maintenance.endpoints") {
			if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
				endpoints[endpoint] = struct{}{}
			}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(endpoints) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, blocked := endpoints[matchedRoutePath(r)]; blocked {
				writeJSON(w, errorResponse{Message: "service is under maintenance", Code: "maintenance"}, http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
