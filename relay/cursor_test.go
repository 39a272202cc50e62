package relay

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, offset := range []int{0, 1, 42, 999999} {
		cursor := EncodeCursor(offset)
		got, err := DecodeCursor(cursor)
		require.NoError(t, err)
		assert.Equal(t, offset, got)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!not-base64!!"},
		{"wrong prefix", base64.StdEncoding.EncodeToString([]byte("somethingelse:5"))},
		{"non numeric", base64.StdEncoding.EncodeToString([]byte("offsetcursor:abc"))},
		{"negative", base64.StdEncoding.EncodeToString([]byte("offsetcursor:-1"))},
		{"plain number", "5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCursor(tc.cursor)
			require.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestGlobalIDRoundTrip(t *testing.T) {
	id := EncodeGlobalID("Author", "42")
	typeName, rawID, err := DecodeGlobalID(id)
	require.NoError(t, err)
	assert.Equal(t, "Author", typeName)
	assert.Equal(t, "42", rawID)
}

func TestGlobalIDPreservesColonsInRawID(t *testing.T) {
	id := EncodeGlobalID("Post", "urn:uuid:1234")
	typeName, rawID, err := DecodeGlobalID(id)
	require.NoError(t, err)
	assert.Equal(t, "Post", typeName)
	assert.Equal(t, "urn:uuid:1234", rawID)
}

func TestDecodeGlobalIDRejectsPlainIDs(t *testing.T) {
	tests := []string{
		"42",
		"!!not-base64!!",
		base64.StdEncoding.EncodeToString([]byte("noseparator")),
		base64.StdEncoding.EncodeToString([]byte(":42")),
		base64.StdEncoding.EncodeToString([]byte("Author:")),
	}
	for _, in := range tests {
		_, _, err := DecodeGlobalID(in)
		require.ErrorIs(t, err, ErrInvalidGlobalID, "input %q", in)
	}
}
