package middleware

import (
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/pkg/response"
	"github.com/AnshRaj112/sparklink-backend/pkg/clientip"
)

// Message send limit: per caller, 1 msg/s with a burst of 10.
const (
	messageSendRPS   = 1
	messageSendBurst = 10
)

// MessageSendRateLimit limits how fast one caller can send messages. Callers
// are keyed by user id after RequireAuth, by IP otherwise.
func MessageSendRateLimit(trustProxy bool) func(http.Handler) http.Handler {
	limiters := newLimiterSet(rate.Limit(messageSendRPS), messageSendBurst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientip.FromRequest(r, trustProxy)
			if userID, ok := UserID(r.Context()); ok {
				key = "user:" + userID
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(messageSendBurst))
			if !limiters.allow(key) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				response.Error(w, apierrors.ErrRateLimited.WithMessage("Too many messages. Please slow down."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
