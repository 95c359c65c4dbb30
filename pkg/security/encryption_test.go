package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("ab", 32)

func TestIDProtectorRoundTrip(t *testing.T) {
	p, err := NewIDProtector(testKey)
	require.NoError(t, err)

	sealed, err := p.Seal("900101-14-5678")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "900101")

	opened, err := p.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "900101145678", opened)
}

func TestIDProtectorDigestIgnoresFormatting(t *testing.T) {
	p, err := NewIDProtector(testKey)
	require.NoError(t, err)

	assert.Equal(t, p.Digest("900101-14-5678"), p.Digest(" 900101145678 "))
	assert.NotEqual(t, p.Digest("900101145678"), p.Digest("900101145679"))

	other, err := NewIDProtector(strings.Repeat("cd", 32))
	require.NoError(t, err)
	assert.NotEqual(t, p.Digest("900101145678"), other.Digest("900101145678"))
}

func TestTamperedCiphertextFails(t *testing.T) {
	p, err := NewIDProtector(testKey)
	require.NoError(t, err)

	sealed, err := p.Seal("S1234567A")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = p.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestBadKey(t *testing.T) {
	_, err := NewIDProtector("abcd")
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewIDProtector("zz")
	assert.Error(t, err)
}
