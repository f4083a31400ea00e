package auth

import (
	"net/http"

	"github.com/mind-engage/mindengage-handin/internal/config"
	"github.com/mind-engage/mindengage-handin/internal/rbac"
)

// AttachRoleFromAccounts replaces the token's role with the account's current
// role. Tokens for accounts that no longer exist are rejected.
func AttachRoleFromAccounts(accounts map[string]config.Account) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			acct, ok := accounts[SubjectFromContext(ctx)]
			if !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			if acct.Role != rbac.RoleFromContext(ctx) {
				ctx = rbac.WithRole(ctx, acct.Role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
