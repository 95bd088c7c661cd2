package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Signature headers sent with every webhook delivery.
const (
	HeaderEventID     = "X-Event-ID"
	HeaderIdempotency = "X-Idempotency-Key"
	HeaderEventTopic  = "X-Event-Topic"
	HeaderOccurredAt  = "X-Event-Occurred-At"
	HeaderTimestamp   = "X-Timestamp"
	HeaderSignature   = "X-Signature"
)

// ComputeSignature returns hex HMAC-SHA256 of "<ts>.<eventID>.<body>" keyed
// by the shared secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	msg := make([]byte, 0, len(body)+len(eventID)+24)
	msg = strconv.AppendInt(msg, ts, 10)
	msg = append(msg, '.')
	msg = append(msg, eventID...)
	msg = append(msg, '.')
	msg = append(msg, body...)
	_, _ = mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received delivery, rejecting timestamps further
// than skew from now. Receivers use it to authenticate the sheet webhook.
func VerifySignature(secret, signature string, ts int64, eventID string, body []byte, skew time.Duration, now time.Time) bool {
	if skew > 0 {
		if d := now.Sub(time.Unix(ts, 0)); d > skew || d < -skew {
			return false
		}
	}
	want := ComputeSignature(secret, ts, eventID, body)
	return hmac.Equal([]byte(want), []byte(signature))
}
