package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()

	payload := []byte(`{"pass.json":"abc123"}`)
	sig := svc.Sign("secret-key", payload)
	assert.NotEmpty(t, sig)
	assert.True(t, svc.Verify("secret-key", payload, sig))
}

func TestHMACSignatureService_WrongKey(t *testing.T) {
	svc := NewHMACSignatureService()

	payload := []byte("payload")
	sig := svc.Sign("key-a", payload)
	assert.False(t, svc.Verify("key-b", payload, sig))
}

func TestHMACSignatureService_TamperedPayload(t *testing.T) {
	svc := NewHMACSignatureService()

	sig := svc.Sign("key", []byte("original"))
	assert.False(t, svc.Verify("key", []byte("tampered"), sig))
}

func TestHMACSignatureService_Deterministic(t *testing.T) {
	svc := NewHMACSignatureService()

	payload := []byte("payload")
	assert.Equal(t, svc.Sign("key", payload), svc.Sign("key", payload))
}
