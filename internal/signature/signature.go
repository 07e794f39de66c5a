// Package signature computes and verifies HMAC-SHA256 webhook signatures.
//
// The same scheme authenticates both directions: outbound deliveries to
// subscriber endpoints and inbound webhooks from upstream providers. The
// signature always covers the exact bytes placed on the wire; signing before
// serialization, or re-serializing afterward, breaks verification.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the replay window accepted for timestamped signatures.
const DefaultTolerance = 300 * time.Second

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the signature and compares in constant time.
func Verify(payload []byte, sig, secret string) bool {
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hmac.Equal(h.Sum(nil), expected)
}

// SignTimestamped produces a composite "t=<unix>,v1=<hex>" header value.
// The signed string is "<t>.<payload>", binding the timestamp to the body so
// a replayed payload cannot be re-stamped.
func SignTimestamped(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	signed := fmt.Sprintf("%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, Sign([]byte(signed), secret))
}

// VerifyTimestamped checks a composite "t=<unix>,v1=<hex>" header within the
// given tolerance of now. A zero tolerance falls back to DefaultTolerance.
// Malformed headers, stale timestamps, and bad signatures all return false.
func VerifyTimestamped(payload []byte, header, secret string, tolerance time.Duration, now time.Time) bool {
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return false
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return false
			}
			ts = n
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return false
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(tolerance.Seconds()) {
		return false
	}

	signed := fmt.Sprintf("%d.%s", ts, payload)
	return Verify([]byte(signed), sig, secret)
}
