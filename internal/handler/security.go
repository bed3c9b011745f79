package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/circuitshop/api/internal/domain/auth"
	"github.com/circuitshop/api/pkg/httpmiddleware"
)

// APIKeyAuth authenticates admin requests via HMAC-SHA256 hashed API keys
// supplied in the api_key header.
type APIKeyAuth struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAPIKeyAuth creates an APIKeyAuth with the given API key repository and
// HMAC pepper.
func NewAPIKeyAuth(apikeys auth.Repository, pepper []byte) *APIKeyAuth {
	return &APIKeyAuth{apikeys: apikeys, pepper: pepper}
}

// Middleware rejects requests whose api_key header does not resolve to a
// stored key. The lookup is by HMAC hash and the stored hash is re-compared
// in constant time to guard against timing side-channels.
func (a *APIKeyAuth) Middleware() httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("api_key")
			if key == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			mac := hmac.New(sha256.New, a.pepper)
			mac.Write([]byte(key))
			hash := mac.Sum(nil)

			info, err := a.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			stored, err := hex.DecodeString(info.KeyHash)
			if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
