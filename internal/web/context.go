package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/divimport/internal/dividend"
	mw "github.com/JonMunkholm/divimport/internal/web/middleware"
)

// withClient adds the client address and user agent to the request context
// for the import audit record. The address is final once TrustedRealIP ran.
func withClient(r *http.Request) context.Context {
	return dividend.ContextWithClient(r.Context(), mw.ClientIP(r), r.UserAgent())
}
