package webhook

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestParseSignatureHeader(t *testing.T) {
	ts, sigs, err := ParseSignatureHeader("t=1700000000, v1=abc ,v0=zzz,v1=def")
	require.NoError(t, err)
	assert.Equal(t, "1700000000", ts)
	assert.Equal(t, []string{"abc", "def"}, sigs)

	for _, header := range []string{"", "v1=abc", "t=1700000000", "t=soon,v1=abc", "garbage"} {
		_, _, err := ParseSignatureHeader(header)
		assert.Error(t, err, header)
	}
}

func TestVerifySignatureAcceptsAnyMatchingV1(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment.succeeded"}`)
	good := ComputeSignature(body, "1700000000", testSecret)

	assert.True(t, VerifySignature(body, "t=1700000000,v1="+good, testSecret))
	assert.True(t, VerifySignature(body, "t=1700000000,v1=deadbeef,v1="+good, testSecret))
	assert.False(t, VerifySignature(body, "t=1700000001,v1="+good, testSecret))
	assert.False(t, VerifySignature(body, "t=1700000000,v1="+good, "other"))
	assert.False(t, VerifySignature(body, "t=1700000000,v1="+good, ""))
	assert.False(t, VerifySignature(body, "", testSecret))
}

func TestVerifySignatureRejectsLengthMismatch(t *testing.T) {
	body := []byte(`{}`)
	good := ComputeSignature(body, "1", testSecret)

	assert.False(t, VerifySignature(body, "t=1,v1="+good[:len(good)-2], testSecret))
	assert.False(t, VerifySignature(body, "t=1,v1="+good+"00", testSecret))
}

func TestVerifySignatureSingleByteMutation(t *testing.T) {
	body := []byte(`{"id":"evt_9","type":"payment.succeeded","data":{"object":{"id":"pi_9"}}}`)
	ts := "1700000000"
	good := ComputeSignature(body, ts, testSecret)
	require.True(t, VerifySignature(body, "t="+ts+",v1="+good, testSecret))

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if VerifySignature(mutated, "t="+ts+",v1="+good, testSecret) {
			t.Fatalf("mutated body byte %d still verified", i)
		}
	}

	for i := range good {
		sig := []byte(good)
		if sig[i] == '0' {
			sig[i] = '1'
		} else {
			sig[i] = '0'
		}
		if VerifySignature(body, "t="+ts+",v1="+string(sig), testSecret) {
			t.Fatalf("mutated signature char %d still verified", i)
		}
	}
}

func TestVerifierTolerance(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1_700_000_000, 0)

	v := NewVerifier(testSecret, 5*time.Minute)
	v.Now = func() time.Time { return now }

	assert.True(t, v.Verify(body, SignatureHeaderValue(body, now.Add(-4*time.Minute), testSecret)))
	assert.False(t, v.Verify(body, SignatureHeaderValue(body, now.Add(-6*time.Minute), testSecret)))
	assert.False(t, v.Verify(body, SignatureHeaderValue(body, now.Add(6*time.Minute), testSecret)))

	v.Tolerance = 0
	old := now.Add(-24 * time.Hour)
	assert.True(t, v.Verify(body, "t="+strconv.FormatInt(old.Unix(), 10)+",v1="+ComputeSignature(body, strconv.FormatInt(old.Unix(), 10), testSecret)))
}
