package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrInvalidSignature   = errors.New("signature verification failed")
	ErrStaleTimestamp     = errors.New("signature timestamp outside tolerance")
)

// signatureTolerance bounds how old a signed webhook may be. Replays of a
// captured request fail once the timestamp ages out.
const signatureTolerance = 5 * time.Minute

// verifySignature checks a Stripe-Signature header against the raw body.
// The header carries a timestamp and one or more v1 signatures; each v1 is
// HMAC-SHA256 of "<timestamp>.<body>" under the webhook secret, and any one
// matching is enough.
func verifySignature(payload []byte, header, secret string, now time.Time) error {
	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return ErrMalformedSignature
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return ErrMalformedSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrMalformedSignature
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return ErrInvalidSignature
}
