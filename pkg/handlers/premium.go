package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Sahoo999/meeting-ai/pkg/apierror"
	"github.com/Sahoo999/meeting-ai/pkg/auth"
	"github.com/Sahoo999/meeting-ai/pkg/mw"
)

// PremiumQuery is served by premium.Service.
type PremiumQuery[T any] func(ctx context.Context, userID string) (T, error)

// PremiumHandler serves one read-only premium query for the signed-in user.
// A nil result encodes as JSON null.
type PremiumHandler[T any] struct {
	Query  PremiumQuery[T]
	Logger *slog.Logger
}

func (h PremiumHandler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		apierror.Write(w, &apierror.Error{Kind: apierror.KindInvalidRequest, Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		apierror.Write(w, apierror.Unauthorized("missing bearer token"))
		return
	}

	out, err := h.Query(r.Context(), p.UserID)
	if err != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("premium: query failed", "request_id", reqID, "path", r.URL.Path, "error", err)
		apierror.Write(w, apierror.Integration("billing unavailable", err))
		return
	}
	apierror.WriteJSON(w, http.StatusOK, out)
}
