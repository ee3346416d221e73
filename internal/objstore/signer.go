package objstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrBadSignature = errors.New("bad signature")
	ErrURLExpired   = errors.New("signed url expired")
	ErrMalformedSig = errors.New("malformed signature parameters")
)

// Signer issues and verifies time-limited URLs for private objects. The URL
// grants read access to exactly one key until the embedded expiry.
type Signer struct {
	key      []byte
	basePath string
}

// NewSigner builds a Signer. basePath is the URL prefix the serve handler is
// mounted on, e.g. "/files".
func NewSigner(key, basePath string) *Signer {
	return &Signer{key: []byte(key), basePath: basePath}
}

// SignedURL returns a relative URL valid for ttl.
func (s *Signer) SignedURL(key string, ttl time.Duration, now time.Time) string {
	expires := now.Add(ttl).Unix()
	sig := s.signature(key, expires)
	return fmt.Sprintf("%s/%s?exp=%d&sig=%s", s.basePath, key, expires, url.QueryEscape(sig))
}

// Verify checks the signature and expiry for a request to read key.
func (s *Signer) Verify(key, expParam, sig string, now time.Time) error {
	expires, err := strconv.ParseInt(expParam, 10, 64)
	if err != nil {
		return ErrMalformedSig
	}
	if !hmac.Equal([]byte(sig), []byte(s.signature(key, expires))) {
		return ErrBadSignature
	}
	if now.Unix() > expires {
		return ErrURLExpired
	}
	return nil
}

func (s *Signer) signature(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
