package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"onboardline/internal/engine/auth"
	"onboardline/internal/logging"
	"onboardline/internal/repo"
)

const defaultCandidateTokenTTL = 72 * time.Hour

type AuthConfig struct {
	JWTSecret              string
	AllowLegacyActorHeader bool
	CandidateTokenTTL      time.Duration
	Log                    logging.Logger
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

func principalFromRequest(ctx context.Context) (auth.Principal, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p, nil
	}
	return auth.Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role   string `json:"role"`
	CaseID string `json:"case_id,omitempty"`
}

func authenticateJWT(token, secret string, rbac auth.Service) (auth.Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return auth.Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return auth.Principal{}, err
	}
	if !parsed.Valid {
		return auth.Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return auth.Principal{}, errors.New("subject claim required")
	}
	if !rbac.KnownRole(claims.Role) {
		return auth.Principal{}, errors.New("unknown role claim")
	}
	if claims.Role == auth.RoleCandidate && claims.CaseID == "" {
		return auth.Principal{}, errors.New("candidate token without case_id")
	}
	return auth.Principal{
		ActorID: claims.Subject,
		Role:    claims.Role,
		CaseID:  claims.CaseID,
	}, nil
}

// signToken mints an HS256 session token. A zero ttl means no expiry.
func signToken(secret string, p auth.Principal, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.ActorID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Role:   p.Role,
		CaseID: p.CaseID,
	}
	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return signed, expires, err
}

// hrPrincipal resolves an HR user id to a principal carrying the user's role.
func hrPrincipal(ctx context.Context, r repo.Repo, actorID string) (auth.Principal, error) {
	u, err := r.GetHRUser(ctx, actorID)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{ActorID: u.ID, Role: u.Role}, nil
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (auth.Principal, error) {
	if strings.TrimSpace(key) == "" {
		return auth.Principal{}, errors.New("api key required")
	}
	apiKey, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return auth.Principal{}, err
	}
	if apiKey.ActorID == "" {
		return auth.Principal{}, errors.New("api key missing actor")
	}
	return hrPrincipal(ctx, r, apiKey.ActorID)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo, rbac auth.Service) func(http.Handler) http.Handler {
	public := publicPaths(basePath)
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}
	invalid := func(w http.ResponseWriter) {
		respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid credentials", nil))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[path.Clean(req.URL.Path)] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			legacyActor := strings.TrimSpace(req.Header.Get("X-Actor-Id"))
			// EventSource cannot set headers, so the feed accepts the token in the query.
			queryToken := ""
			if req.Method == http.MethodGet {
				queryToken = strings.TrimSpace(req.URL.Query().Get("access_token"))
			}

			if authz != "" || queryToken != "" {
				token := queryToken
				if authz != "" {
					var ok bool
					if token, ok = bearerToken(authz); !ok {
						invalid(w)
						return
					}
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret, rbac)
				if err != nil {
					log.Debug("auth", "jwt rejected", map[string]any{"error": err})
					invalid(w)
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if apiKeyHeader != "" {
				principal, err := authenticateAPIKey(req.Context(), r, apiKeyHeader)
				if err != nil {
					invalid(w)
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if legacyActor != "" && cfg.AllowLegacyActorHeader {
				principal, err := hrPrincipal(req.Context(), r, legacyActor)
				if err != nil {
					invalid(w)
					return
				}
				log.Warn("auth", "legacy X-Actor-Id header used without credentials", map[string]any{"actor_id": legacyActor})
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
