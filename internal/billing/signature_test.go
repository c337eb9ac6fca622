package billing

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "whsec_test"

func TestVerifySignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	if err := VerifySignature(payload, header, testSecret, DefaultTolerance, now); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignatureRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	tampered := []byte(`{"id":"evt_2"}`)
	if err := VerifySignature(tampered, header, testSecret, DefaultTolerance, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	if err := VerifySignature(payload, header, "whsec_other", DefaultTolerance, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	issued := time.Now().Add(-10 * time.Minute)
	header := SignPayload(payload, testSecret, issued)

	if err := VerifySignature(payload, header, testSecret, DefaultTolerance, time.Now()); !errors.Is(err, ErrSignatureExpired) {
		t.Fatalf("expected ErrSignatureExpired, got %v", err)
	}
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	cases := []string{
		"",
		"garbage",
		"t=123",
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
	}
	for _, header := range cases {
		if err := VerifySignature(payload, header, testSecret, DefaultTolerance, time.Now()); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("header %q: expected ErrSignatureInvalid, got %v", header, err)
		}
	}
}

// Stripe puede enviar varias firmas v1 durante una rotacion de secreto;
// alcanza con que una sea valida.
func TestVerifySignatureAcceptsAnyValidCandidate(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	valid := SignPayload(payload, testSecret, now)

	header := valid + ",v1=0000000000000000000000000000000000000000000000000000000000000000"
	if err := VerifySignature(payload, header, testSecret, DefaultTolerance, now); err != nil {
		t.Fatalf("expected one valid candidate to pass, got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	raw := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","customer":"cus_1"}}}`)
	event, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("expected parse success, got %v", err)
	}
	if event.ID != "evt_1" || event.Type != EventCheckoutCompleted {
		t.Fatalf("unexpected event: %+v", event)
	}
	if len(event.Data.Object) == 0 {
		t.Fatalf("expected raw object preserved")
	}

	if _, err := ParseEvent([]byte("not json")); err == nil {
		t.Fatalf("expected parse failure for malformed body")
	}
	if _, err := ParseEvent([]byte(`{"id":"evt_2"}`)); err == nil {
		t.Fatalf("expected parse failure for missing type")
	}
}
