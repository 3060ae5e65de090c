// Package middleware holds the HTTP middleware chain: tenant scoping and
// request logging.  Authentication is terminated upstream; the gateway
// forwards the authenticated org and user as trusted headers.
package middleware

import (
	"context"
	"net/http"

	"github.com/contabil/fiscore/pkg/types/common"
)

const (
	// HeaderOrgID carries the tenant set by the upstream gateway.
	HeaderOrgID = "X-Org-ID"
	// HeaderUserID carries the authenticated user set by the gateway.
	HeaderUserID = "X-User-ID"
)

type contextKey string

const (
	orgIDKey  contextKey = "org_id"
	userIDKey contextKey = "user_id"
)

// ContextOrgID returns the tenant scoping the request, or "".
func ContextOrgID(ctx context.Context) common.OrgID {
	v, _ := ctx.Value(orgIDKey).(common.OrgID)
	return v
}

// ContextUserID returns the authenticated user, or "".
func ContextUserID(ctx context.Context) common.UserID {
	v, _ := ctx.Value(userIDKey).(common.UserID)
	return v
}

// WithOrgID injects a tenant directly; used by tests and the CLI.
func WithOrgID(ctx context.Context, orgID common.OrgID) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// WithUserID injects a user directly; used by tests and the CLI.
func WithUserID(ctx context.Context, userID common.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// TenantMiddleware extracts the org and user headers into the request
// context and rejects requests without a tenant.
type TenantMiddleware struct{}

func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

func (m *TenantMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(HeaderOrgID)
		if orgID == "" {
			http.Error(w, `{"success":false,"error":{"code":"COMMON_002","message":"missing X-Org-ID header"}}`,
				http.StatusBadRequest)
			return
		}

		ctx := WithOrgID(r.Context(), common.OrgID(orgID))
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			ctx = WithUserID(ctx, common.UserID(userID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
