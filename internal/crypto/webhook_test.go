package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSigner(t *testing.T) {
	signer := &WebhookSigner{Secret: "topsecret"}
	body := []byte(`{"kind":"purchase_completed","listing_id":7}`)

	headers := signer.HeadersAt(body, 1750000000)
	assert.Equal(t, "1750000000", headers[HeaderTimestamp])
	assert.NotEmpty(t, headers[HeaderSignature])

	// Signing is deterministic for a fixed timestamp.
	again := signer.HeadersAt(body, 1750000000)
	assert.Equal(t, headers[HeaderSignature], again[HeaderSignature])

	assert.True(t, signer.Verify(body, headers[HeaderTimestamp], headers[HeaderSignature]))

	t.Run("tampered body fails verification", func(t *testing.T) {
		assert.False(t, signer.Verify([]byte(`{"kind":"x"}`), headers[HeaderTimestamp], headers[HeaderSignature]))
	})

	t.Run("shifted timestamp fails verification", func(t *testing.T) {
		assert.False(t, signer.Verify(body, "1750000001", headers[HeaderSignature]))
	})

	t.Run("different secret produces a different signature", func(t *testing.T) {
		other := &WebhookSigner{Secret: "othersecret"}
		assert.NotEqual(t, headers[HeaderSignature], other.HeadersAt(body, 1750000000)[HeaderSignature])
	})

	t.Run("string redacts the secret", func(t *testing.T) {
		assert.Equal(t, "WebhookSigner{secret=tops****}", signer.String())
	})
}

func TestSecretRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("whsec_abc123", "hunter2")
	require.NoError(t, err)

	secret, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "whsec_abc123", secret)

	_, err = DecryptSecret(blob, "wrong-password")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	t.Run("raw secret wins", func(t *testing.T) {
		secret, err := LoadSecret(SecretConfig{RawSecret: "whsec_raw"})
		require.NoError(t, err)
		assert.Equal(t, "whsec_raw", secret)
	})

	t.Run("no source configured", func(t *testing.T) {
		_, err := LoadSecret(SecretConfig{})
		assert.Error(t, err)
	})
}
