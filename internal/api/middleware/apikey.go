package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/response"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/secret"
)

// APIKeyEnv names the environment variable holding the internal API key.
const APIKeyEnv = "INTERNAL_API_KEY"

// TimeTokenTTL is how long a time token stays valid.
const TimeTokenTTL = 5 * time.Minute

// GenerateTimeToken returns a fernet token keyed on apiKey that
// APIKeyMiddleware accepts for TimeTokenTTL. It returns "" when apiKey is
// empty.
func GenerateTimeToken(apiKey string) string {
	box, err := secret.NewBox(apiKey)
	if err != nil {
		return ""
	}
	tok, err := box.Encrypt(strconv.FormatInt(time.Now().Unix(), 10))
	if err != nil {
		log.Error().Err(err).Msg("failed to generate time token")
		return ""
	}
	return tok
}

// APIKeyMiddleware guards mutating endpoints. A request needs the
// X-API-Key header matching INTERNAL_API_KEY and an X-Time-Token produced
// by GenerateTimeToken within the last five minutes.
func APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := os.Getenv(APIKeyEnv)
		if apiKey == "" {
			response.RespondError(w, http.StatusInternalServerError, "server misconfigured", "Authentication not loaded")
			return
		}

		provided := r.Header.Get("X-API-Key")
		if provided == "" {
			response.RespondError(w, http.StatusUnauthorized, "unauthorized", "Missing API key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			response.RespondError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key")
			return
		}

		timeToken := r.Header.Get("X-Time-Token")
		if timeToken == "" {
			response.RespondError(w, http.StatusUnauthorized, "unauthorized", "Missing Time token")
			return
		}
		box, err := secret.NewBox(apiKey)
		if err != nil {
			response.RespondError(w, http.StatusInternalServerError, "server misconfigured", "Authentication not loaded")
			return
		}
		if _, err := box.Decrypt(timeToken, TimeTokenTTL); err != nil {
			response.RespondError(w, http.StatusUnauthorized, "unauthorized", "Time token is invalid or expired")
			return
		}

		next.ServeHTTP(w, r)
	})
}
