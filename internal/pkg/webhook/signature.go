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

const (
	SignatureHeader         = "Provider-Signature"
	FallbackSignatureHeader = "Stripe-Signature"
)

var (
	errEmptyHeader      = errors.New("signature header missing")
	errNoTimestamp      = errors.New("signature header has no timestamp")
	errNoSignatures     = errors.New("signature header has no v1 signature")
	errInvalidTimestamp = errors.New("signature header timestamp is not a unix time")
)

// ParseSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>...]". Unknown keys
// are ignored. The timestamp is returned verbatim because it is part of the
// signed string.
func ParseSignatureHeader(header string) (string, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil, errEmptyHeader
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}

	if timestamp == "" {
		return "", nil, errNoTimestamp
	}
	if _, err := strconv.ParseInt(timestamp, 10, 64); err != nil {
		return "", nil, errInvalidTimestamp
	}
	if len(signatures) == 0 {
		return "", nil, errNoSignatures
	}
	return timestamp, signatures, nil
}

// ComputeSignature returns the hex HMAC-SHA256 of "{timestamp}.{payload}".
func ComputeSignature(payload []byte, timestamp, secret string) string {
	return hex.EncodeToString(sign(payload, timestamp, secret))
}

// SignatureHeaderValue builds a header value for payload signed at ts.
func SignatureHeaderValue(payload []byte, ts time.Time, secret string) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + ComputeSignature(payload, t, secret)
}

// VerifySignature reports whether any v1 signature in header matches payload.
// Payload must be the raw request body.
func VerifySignature(payload []byte, header, secret string) bool {
	ok, _ := verify(payload, header, secret)
	return ok
}

func verify(payload []byte, header, secret string) (bool, string) {
	if strings.TrimSpace(secret) == "" {
		return false, ""
	}
	timestamp, signatures, err := ParseSignatureHeader(header)
	if err != nil {
		return false, ""
	}

	expected := sign(payload, timestamp, secret)
	for _, candidate := range signatures {
		decoded, err := hex.DecodeString(strings.ToLower(candidate))
		if err != nil {
			continue
		}
		// hmac.Equal returns false on length mismatch without comparing contents.
		if hmac.Equal(expected, decoded) {
			return true, timestamp
		}
	}
	return false, timestamp
}

func sign(payload []byte, timestamp, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verifier adds a timestamp window on top of VerifySignature. A zero
// Tolerance disables the window.
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{Secret: secret, Tolerance: tolerance, Now: time.Now}
}

// Verify checks the signature and, when enabled, that the signed timestamp is
// within Tolerance of now in either direction.
func (v *Verifier) Verify(payload []byte, header string) bool {
	ok, timestamp := verify(payload, header, v.Secret)
	if !ok {
		return false
	}
	if v.Tolerance <= 0 {
		return true
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	skew := now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	return skew <= v.Tolerance
}
