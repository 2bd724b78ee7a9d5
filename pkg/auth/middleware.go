package auth

import (
	"net/http"

	"github.com/nimburion/adapter-registry/pkg/controller"
	"github.com/nimburion/adapter-registry/pkg/registry"
)

// Middleware rejects requests the authorizer does not allow: 401 without a
// credential and 403 for a rejected one. Allowed requests carry the principal
// in their context.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := a.Authorize(r.Context(), r.Header.Get("Authorization"))
		switch decision.Effect {
		case Allow:
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), decision.PrincipalID)))
		case Unauthenticated:
			_ = controller.Error(w, r, registry.Unauthorized("Unauthorized"))
		default:
			_, body := controller.MapError(r.Context(), registry.Unauthorized("Forbidden"))
			body.Code = "Forbidden"
			_ = controller.JSON(w, http.StatusForbidden, body)
		}
	})
}
