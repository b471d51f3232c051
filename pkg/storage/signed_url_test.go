package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("stylist-1/2025-03-03", "stylist-1_2025-03-03.ics")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, file, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "stylist-1/2025-03-03", subject)
	require.Equal(t, "stylist-1_2025-03-03.ics", file)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("stylist-1/2025-03-03", "roster.csv")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	_, file, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "roster.csv", file)
}

func TestSignedURLSignerRejectsForeignSecret(t *testing.T) {
	token, _, err := NewSignedURLSigner("secret", time.Hour).Generate("s", "f.pdf")
	require.NoError(t, err)

	_, _, _, err = NewSignedURLSigner("other", time.Hour).Parse(token, false)
	require.Error(t, err)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape.csv", []byte("x"))
	require.Error(t, err)

	name, err := store.Save("roster.csv", []byte("a,b"))
	require.NoError(t, err)
	f, err := store.Open(name)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
