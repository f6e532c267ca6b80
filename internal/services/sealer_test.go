package services

import (
	"bytes"
	"testing"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer(t *testing.T) {
	sealer, err := NewSealer(testutil.TestSessionSecret)
	require.NoError(t, err)

	creds := testutil.TestCredentials()

	t.Run("round trip returns the exact secret", func(t *testing.T) {
		odd := models.Credentials{Identity: "user", Secret: " pä$$ \"wörd\" \x00 "}

		sealed, err := sealer.Seal("sid-1", odd)
		require.NoError(t, err)

		opened, err := sealer.Open("sid-1", sealed)
		require.NoError(t, err)
		assert.Equal(t, odd, opened)
	})

	t.Run("sealed blob does not contain the secret", func(t *testing.T) {
		sealed, err := sealer.Seal("sid-1", creds)
		require.NoError(t, err)

		assert.False(t, bytes.Contains(sealed, []byte(creds.Secret)))
		assert.False(t, bytes.Contains(sealed, []byte(creds.Identity)))
	})

	t.Run("each seal uses a fresh nonce", func(t *testing.T) {
		a, err := sealer.Seal("sid-1", creds)
		require.NoError(t, err)
		b, err := sealer.Seal("sid-1", creds)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("blob is bound to its session id", func(t *testing.T) {
		sealed, err := sealer.Seal("sid-1", creds)
		require.NoError(t, err)

		_, err = sealer.Open("sid-2", sealed)
		assert.ErrorIs(t, err, ErrSealedDataInvalid)
	})

	t.Run("tampered blob is rejected", func(t *testing.T) {
		sealed, err := sealer.Seal("sid-1", creds)
		require.NoError(t, err)

		sealed[len(sealed)-1] ^= 0xff
		_, err = sealer.Open("sid-1", sealed)
		assert.ErrorIs(t, err, ErrSealedDataInvalid)
	})

	t.Run("blob sealed under another secret is rejected", func(t *testing.T) {
		other, err := NewSealer([]byte("another-secret-another-secret-00"))
		require.NoError(t, err)

		sealed, err := other.Seal("sid-1", creds)
		require.NoError(t, err)

		_, err = sealer.Open("sid-1", sealed)
		assert.ErrorIs(t, err, ErrSealedDataInvalid)
	})

	t.Run("short blob is rejected", func(t *testing.T) {
		_, err := sealer.Open("sid-1", []byte("short"))
		assert.ErrorIs(t, err, ErrSealedDataInvalid)
	})
}

func TestNewSealerRequiresSecret(t *testing.T) {
	_, err := NewSealer(nil)
	assert.Error(t, err)
}
