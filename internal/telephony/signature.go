package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// HeaderSignature carries the provider's base64 HMAC of the request.
const HeaderSignature = "X-Twilio-Signature"

var (
	ErrMissingSignature    = errors.New("telephony: missing webhook signature")
	ErrInvalidSignature    = errors.New("telephony: invalid webhook signature")
	ErrSecretNotConfigured = errors.New("telephony: webhook secret not configured")
)

// SignatureBase is the signed string: the full URL followed by every parameter value
// in key order, with no separators. Repeated keys appear once per occurrence and each
// occurrence contributes the last value sent for that key.
func SignatureBase(fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k, vs := range params {
		for range vs {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vs := params[k]
		b.WriteString(vs[len(vs)-1])
	}
	return b.String()
}

// ComputeSignature returns base64(HMAC-SHA1(secret, SignatureBase(fullURL, params))).
func ComputeSignature(secret, fullURL string, params url.Values) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(SignatureBase(fullURL, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature authenticates a webhook. The check is unconditional: an empty secret
// or an absent header is a rejection, never a bypass.
func VerifySignature(secret, fullURL string, params url.Values, header string) error {
	if secret == "" {
		return ErrSecretNotConfigured
	}
	if header == "" {
		return ErrMissingSignature
	}
	expected := ComputeSignature(secret, fullURL, params)
	if !hmac.Equal([]byte(expected), []byte(header)) {
		return ErrInvalidSignature
	}
	return nil
}

// SigningURL rebuilds the URL the provider called. publicBaseURL, when set, replaces the
// scheme and host seen by this process (TLS terminates at the edge).
func SigningURL(r *http.Request, publicBaseURL string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
