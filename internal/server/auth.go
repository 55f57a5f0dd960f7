package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"civicdesk/internal/domain"
	"civicdesk/internal/repo"
)

type AuthConfig struct {
	JWTSecret              string
	AllowLegacyActorHeader bool
	Logger                 *log.Logger
}

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) domain.Principal {
	if p, ok := ctx.Value(principalKey{}).(domain.Principal); ok {
		return p
	}
	return anonymous()
}

// anonymous is the principal for unauthenticated callers: a member of the
// public filing or reading their own report.
func anonymous() domain.Principal {
	return domain.Principal{ActorID: "public", Role: domain.RoleResident, Source: "anonymous"}
}

func requireStaff(ctx context.Context) (domain.Principal, huma.StatusError) {
	p := principalFromContext(ctx)
	if !p.IsStaff() {
		return p, newAPIError(http.StatusForbidden, "forbidden", "staff credentials required", nil)
	}
	return p, nil
}

func requireRole(ctx context.Context, roles ...domain.Role) (domain.Principal, huma.StatusError) {
	p := principalFromContext(ctx)
	for _, r := range roles {
		if p.Role == r {
			return p, nil
		}
	}
	return p, newAPIError(http.StatusForbidden, "forbidden", "role not permitted for this operation", map[string]any{"role": string(p.Role)})
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
}

func authenticateJWT(token, secret string) (domain.Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return domain.Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return domain.Principal{}, err
	}
	if !parsed.Valid {
		return domain.Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return domain.Principal{}, errors.New("subject claim required")
	}
	role := domain.Role(claims.Role)
	switch role {
	case domain.RoleResident, domain.RoleAgent, domain.RoleOfficer, domain.RoleTaskForce, domain.RoleWebAdmin:
	default:
		return domain.Principal{}, errors.New("unknown role claim")
	}
	return domain.Principal{
		ActorID:   claims.Subject,
		Role:      role,
		ProfileID: claims.ProfileID,
		Source:    "jwt",
	}, nil
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (domain.Principal, error) {
	if strings.TrimSpace(key) == "" {
		return domain.Principal{}, errors.New("api key required")
	}
	apiKey, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return domain.Principal{}, err
	}
	if apiKey.ActorID == "" {
		return domain.Principal{}, errors.New("api key missing actor")
	}
	return domain.Principal{
		ActorID:   apiKey.ActorID,
		Role:      apiKey.Role,
		ProfileID: apiKey.ProfileID,
		Source:    "api_key",
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves credentials into a principal. Requests without
// credentials proceed as the anonymous resident; bad credentials are
// rejected outright rather than downgraded.
func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			legacyActor := strings.TrimSpace(req.Header.Get("X-Actor-Id"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if apiKeyHeader != "" {
				principal, err := authenticateAPIKey(req.Context(), r, apiKeyHeader)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if legacyActor != "" && cfg.AllowLegacyActorHeader {
				cfg.logger().Printf("WARNING: using legacy X-Actor-Id header without auth; deprecated and ignored when Authorization or X-Api-Key is present (actor_id=%s)", legacyActor)
				role := domain.Role(strings.TrimSpace(req.Header.Get("X-Actor-Role")))
				if role == "" {
					role = domain.RoleResident
				}
				principal := domain.Principal{
					ActorID:   legacyActor,
					Role:      role,
					ProfileID: strings.TrimSpace(req.Header.Get("X-Profile-Id")),
					Source:    "legacy_header",
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), anonymous())))
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
