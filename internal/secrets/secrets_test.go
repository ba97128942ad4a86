package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvResolver(t *testing.T) {
	t.Setenv("SECRET_ACME_FTP_PROD_USERNAME", "feeduser")
	t.Setenv("SECRET_ACME_FTP_PROD_PASSWORD", "s3cret")

	r := NewEnvResolver()

	creds, err := r.Resolve(context.Background(), "acme-ftp/prod")
	require.NoError(t, err)
	assert.Equal(t, "feeduser", creds.Username)
	assert.Equal(t, "s3cret", creds.Password)
	assert.Empty(t, creds.Token)
}

func TestEnvResolver_EmptyHandleIsAnonymous(t *testing.T) {
	r := NewEnvResolver()

	creds, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "", creds.Username)
}

func TestEnvResolver_MissingHandle(t *testing.T) {
	r := NewEnvResolver()

	_, err := r.Resolve(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}
