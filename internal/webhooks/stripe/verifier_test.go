package stripewebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
)

const testSecret = "whsec_test_secret"

func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	v, err := NewVerifier(testSecret, time.Minute)
	require.NoError(t, err)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27","created":1700000000,"data":{"object":{"id":"cs_1"}}}`)

	event, err := v.Verify(payload, signPayload(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "checkout.session.completed", string(event.Type))
	require.NotNil(t, event.Data)
	assert.JSONEq(t, `{"id":"cs_1"}`, string(event.Data.Raw))
}

func TestVerifyRejectsBadSignatures(t *testing.T) {
	v, err := NewVerifier(testSecret, time.Minute)
	require.NoError(t, err)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)

	cases := map[string]string{
		"missing header": "",
		"wrong secret":   signPayload(payload, "whsec_other", time.Now()),
		"stale":          signPayload(payload, testSecret, time.Now().Add(-time.Hour)),
		"garbage":        "not-a-signature",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(payload, header)
			require.Error(t, err)
			assert.Equal(t, pkgerrors.CodeSignatureInvalid, pkgerrors.As(err).Code())
			assert.False(t, pkgerrors.IsRetryable(err))
		})
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	v, err := NewVerifier(testSecret, time.Minute)
	require.NoError(t, err)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	header := signPayload(payload, testSecret, time.Now())

	// re-serialised JSON no longer matches the signed bytes
	_, err = v.Verify([]byte(`{"id": "evt_1", "type": "checkout.session.completed", "data": {"object": {}}}`), header)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeSignatureInvalid, pkgerrors.As(err).Code())
}

func TestVerifyMalformedEnvelope(t *testing.T) {
	v, err := NewVerifier(testSecret, time.Minute)
	require.NoError(t, err)

	for _, payload := range [][]byte{[]byte(`not json`), []byte(`{"data":{"object":{}}}`)} {
		_, err := v.Verify(payload, signPayload(payload, testSecret, time.Now()))
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeMalformedPayload, pkgerrors.As(err).Code())
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(" ", time.Minute)
	require.Error(t, err)
}
