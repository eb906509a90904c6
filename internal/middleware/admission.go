package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/internal/domain/models"
	"github.com/guttosm/stockmeter/internal/gateway"
)

const (
	// APIKeyHeader carries the caller's API key.
	APIKeyHeader = "X-API-Key"

	UserIDKey      = "user_id"
	EntitlementKey = "entitlement"
)

// Admitter is the part of the gateway the middleware needs.
type Admitter interface {
	Admit(ctx context.Context, apiKey string, meta gateway.RequestMeta) gateway.Decision
	Record(identity models.Identity, meta gateway.RequestMeta, status int)
}

// Admission gates every request through the admission gateway.
//
// Behavior:
//   - Reads the API key from X-API-Key.
//   - Rejected requests are answered immediately (429s carry Retry-After).
//   - Admitted requests get user id and entitlement stored in the context,
//     and are audited with their final status once the handler returns.
func Admission(g Admitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid, _ := c.Get(RequestIDKey)
		meta := gateway.RequestMeta{
			Endpoint:  c.Request.URL.RequestURI(),
			Method:    c.Request.Method,
			RequestID: toString(rid),
		}

		d := g.Admit(c.Request.Context(), c.GetHeader(APIKeyHeader), meta)
		if !d.Admitted() {
			WriteError(c, d.Err)
			return
		}

		c.Set(UserIDKey, d.Identity.UserID)
		c.Set(EntitlementKey, d.Entitlement)

		c.Next()

		g.Record(*d.Identity, meta, c.Writer.Status())
	}
}

// EntitlementFrom returns the entitlement stored by Admission.
func EntitlementFrom(c *gin.Context) (models.Entitlement, bool) {
	v, ok := c.Get(EntitlementKey)
	if !ok {
		return models.Entitlement{}, false
	}
	ent, ok := v.(models.Entitlement)
	return ent, ok
}
