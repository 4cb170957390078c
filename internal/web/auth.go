package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errUnauthenticated = errors.New("authentication required")
	errForbidden       = errors.New("caller is not authorized for this company")
)

type authClaimsKey struct{}

// AuthClaims is the tenant identity carried by an Authorization bearer
// token. There is no User entity in this module (§3's DATA MODEL only ever
// references createdByUserId/userId as opaque integers); the token exists
// solely to bind a request to a companyId and an optional role, so this
// package only ever verifies tokens minted by an upstream identity
// provider — it never issues or refreshes one itself.
type AuthClaims struct {
	CompanyID int
	UserID    *int
	Role      string
}

func authFromContext(ctx context.Context) *AuthClaims {
	v, _ := ctx.Value(authClaimsKey{}).(*AuthClaims)
	return v
}

type tenantClaims struct {
	CompanyID int    `json:"companyId"`
	UserID    *int   `json:"userId,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RequireAuth verifies the Authorization: Bearer <token> header against
// jwtSecret and injects AuthClaims into the request context. It does not
// yet check the claimed company against the path's companyId — see
// requireTenantMatch, which runs after the router has parsed {companyId}.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				writeError(w, r, errUnauthenticated)
				return
			}

			claims := &tenantClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, r, errUnauthenticated)
				return
			}

			ctx := context.WithValue(r.Context(), authClaimsKey{}, &AuthClaims{
				CompanyID: claims.CompanyID,
				UserID:    claims.UserID,
				Role:      claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireTenantMatch rejects a request whose path {companyId} does not
// match the authenticated caller's tenant claim, per §6: "the handler must
// verify the path companyId matches the caller's tenant and reject
// cross-tenant requests."
func requireTenantMatch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := authFromContext(r.Context())
		pathCompanyID, err := companyIDParam(r)
		if claims == nil {
			writeError(w, r, errUnauthenticated)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		if claims.CompanyID != pathCompanyID {
			writeError(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
