package httpadapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	userHeader   = "X-User-Id"
	tenantHeader = "X-Tenant-Id"
)

// caller is the authenticated identity resolved by the gateway in front of
// this service. An empty TenantID means the user's personal space.
type caller struct {
	UserID   string
	TenantID string
}

type callerContextKey struct{}

func callerFromContext(ctx context.Context) caller {
	c, _ := ctx.Value(callerContextKey{}).(caller)
	return c
}

// owns reports whether the caller may see doc: same tenant, or the owner of
// a personal document.
func (c caller) owns(doc *domain.Document) bool {
	if doc.TenantID != "" {
		return doc.TenantID == c.TenantID
	}
	return c.TenantID == "" && doc.OwnerID == c.UserID
}

// tenantMiddleware requires X-User-Id and, when X-Tenant-Id is present and
// membership checks are on, verifies the user belongs to that tenant.
func tenantMiddleware(authz ports.TenantAuthorizer, requireMembership bool) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := caller{
				UserID:   strings.TrimSpace(r.Header.Get(userHeader)),
				TenantID: strings.TrimSpace(r.Header.Get(tenantHeader)),
			}
			if c.UserID == "" {
				writeDomainError(w, r, domain.WrapError(domain.ErrUnauthorized, "resolve caller", errMissingUser))
				return
			}
			if c.TenantID != "" && requireMembership && authz != nil {
				member, err := authz.IsMember(r.Context(), c.UserID, c.TenantID)
				if err != nil {
					writeDomainError(w, r, domain.WrapError(domain.ErrTemporary, "check membership", err))
					return
				}
				if !member {
					writeDomainError(w, r, domain.WrapError(domain.ErrForbidden, "check membership", errNotMember))
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerContextKey{}, c)))
		})
	}
}
