package receipt

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/")
	require.NoError(t, err)
	ctx := context.Background()

	key := Key("OM-20260211-0007")
	require.NoError(t, s.Put(ctx, key, []byte("receipt body")))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("receipt body"), got)
}

func TestSignedURLKeepsKeySlashes(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	signed, err := s.SignedURL("receipts/OM-20260211-0007.txt")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/storage/local/receipts/OM-20260211-0007.txt", signed)

	// only characters inside a segment get escaped
	signed, err = s.SignedURL("receipts/order 7.txt")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/storage/local/receipts/order%207.txt", signed)
}

func TestSignedURLResolvesToStoredKey(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)
	ctx := context.Background()

	key := Key("OM-20260211-0001")
	require.NoError(t, s.Put(ctx, key, []byte("x")))

	signed, err := s.SignedURL(key)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	// the path the signed URL names must unescape back to the stored key
	back, err := url.PathUnescape(strings.TrimPrefix(u.EscapedPath(), "/storage/local/"))
	require.NoError(t, err)
	_, err = s.Get(ctx, back)
	require.NoError(t, err)
}
