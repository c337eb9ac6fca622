package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// El header de firma tiene la forma "t=<unix>,v1=<hex>". La firma es
// HMAC-SHA256 del string "<t>.<body crudo>"; por eso el handler debe
// verificar sobre el body sin parsear.
const (
	SignatureHeader  = "Stripe-Signature"
	signatureScheme  = "v1"
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrSignatureExpired = errors.New("webhook signature outside tolerance")
)

// SignPayload computa el header de firma para un payload. Lo usan los
// tests y cualquier emisor de eventos propio.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := computeMAC(payload, secret, ts)
	return fmt.Sprintf("t=%s,%s=%s", ts, signatureScheme, mac)
}

// VerifySignature valida el header contra el payload crudo dentro de la
// tolerancia dada. Comparacion en tiempo constante.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var ts string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			ts = pair[1]
		case signatureScheme:
			candidates = append(candidates, pair[1])
		}
	}
	if ts == "" || len(candidates) == 0 {
		return ErrSignatureInvalid
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	issued := time.Unix(unix, 0)
	if now.Sub(issued) > tolerance || issued.Sub(now) > tolerance {
		return ErrSignatureExpired
	}

	expected := computeMAC(payload, secret, ts)
	for _, candidate := range candidates {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1 {
			return nil
		}
	}
	return ErrSignatureInvalid
}

func computeMAC(payload []byte, secret, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
