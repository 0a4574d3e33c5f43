package session

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/roach88/fieldsync/internal/canonical"
)

// TimestampLayout is the X-TIMESTAMP format: UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t for the X-TIMESTAMP header.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// SigningInput is everything a signature covers.
type SigningInput struct {
	Method    string
	Path      string
	Token     string // may carry a "Bearer " prefix; it is stripped
	Body      []byte // canonical JSON, empty when there is no body
	Timestamp string
}

// StringToSign returns METHOD:path:token:hex(sha256(body)):timestamp.
func StringToSign(in SigningInput) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		in.Method, in.Path, StripBearer(in.Token), canonical.BodyHash(in.Body), in.Timestamp)
}

// Sign returns the lowercase hex HMAC-SHA512 of StringToSign(in) keyed by secret.
func Sign(in SigningInput, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(StringToSign(in)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches in under secret, in constant time.
func Verify(in SigningInput, secret, signature string) bool {
	want, err := hex.DecodeString(Sign(in, secret))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}
