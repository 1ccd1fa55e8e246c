// Package webhook verifies signed delivery event webhooks. Signatures follow
// the Svix scheme used by Resend: HMAC-SHA256 over "{id}.{timestamp}.{body}".
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"newsroom/internal/domain"
)

const secretPrefix = "whsec_"

var headerSets = [][3]string{
	{"svix-id", "svix-timestamp", "svix-signature"},
	{"webhook-id", "webhook-timestamp", "webhook-signature"},
}

type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("webhook secret is empty")
	}
	return &Verifier{key: key, tolerance: tolerance, now: time.Now}, nil
}

// Verify checks the signature headers against payload. It never inspects the
// payload contents.
func (v *Verifier) Verify(payload []byte, headers http.Header) (*domain.VerifiedEvent, error) {
	id, ts, sigs, ok := signatureHeaders(headers)
	if !ok {
		return nil, domain.ErrMissingHeaders
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed timestamp", domain.ErrMissingHeaders)
	}
	sent := time.Unix(unix, 0)
	if skew := v.now().Sub(sent); math.Abs(float64(skew)) > float64(v.tolerance) {
		return nil, domain.ErrTimestampSkew
	}

	expected := v.sign(id, ts, payload)
	for _, candidate := range strings.Fields(sigs) {
		version, sig, found := strings.Cut(candidate, ",")
		if !found || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return &domain.VerifiedEvent{ID: id, Timestamp: sent.UTC(), Body: payload}, nil
		}
	}
	return nil, domain.ErrInvalidSignature
}

// Sign returns the signature header value for payload.
func (v *Verifier) Sign(id string, at time.Time, payload []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "v1," + base64.StdEncoding.EncodeToString(v.sign(id, ts, payload))
}

func (v *Verifier) sign(id, ts string, payload []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func signatureHeaders(h http.Header) (id, ts, sigs string, ok bool) {
	for _, set := range headerSets {
		id, ts, sigs = h.Get(set[0]), h.Get(set[1]), h.Get(set[2])
		if id != "" && ts != "" && sigs != "" {
			return id, ts, sigs, true
		}
	}
	return "", "", "", false
}
