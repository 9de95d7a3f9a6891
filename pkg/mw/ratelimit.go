package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Sahoo999/meeting-ai/pkg/apierror"
	"github.com/Sahoo999/meeting-ai/pkg/auth"
	"github.com/Sahoo999/meeting-ai/pkg/ratelimit"
)

// RateLimit applies the per-principal limiter. It must run inside Auth.
func RateLimit(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if !limiter.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := "anonymous"
		if p, ok := auth.PrincipalFrom(r.Context()); ok {
			principal = ratelimit.PrincipalKeyFromUserID(p.UserID)
		}

		dec := limiter.AcquireRequest(principal, time.Now())
		if !dec.Allowed {
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			}
			apierror.Write(w, apierror.New(apierror.KindRateLimit, "rate limit exceeded", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
