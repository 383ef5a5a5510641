package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit allows requestLimit requests per windowLength for each caller.
// Authenticated operators are limited by subject, everything else (the chat
// provider's webhook calls) by client IP.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(retryAfterSeconds(windowLength))
	body := []byte(`{"error":"rate limit exceeded","retry_after":` + retryAfter + `}`)

	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(rateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write(body)
		}),
	)
}

func rateKey(r *http.Request) (string, error) {
	if op := GetOperatorID(r.Context()); op != "" {
		return "operator:" + op, nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

func retryAfterSeconds(window time.Duration) int {
	if s := int(window.Round(time.Second) / time.Second); s > 0 {
		return s
	}
	return 1
}
