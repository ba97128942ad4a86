// Package secrets is the boundary to the credential collaborator: a
// configuration stores only an opaque handle, the live material is fetched
// at call time and never cached beyond one execution.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol"
)

var ErrNotFound = errors.New("secret not found")

// Resolver fetches credential material by opaque handle.
type Resolver interface {
	Resolve(ctx context.Context, handle string) (protocol.Credentials, error)
}

// EnvResolver resolves handles from the process environment. A handle H maps
// to SECRET_<H>_USERNAME / _PASSWORD / _TOKEN, with H upper-cased and
// non-alphanumerics folded to underscores. Suitable for development and
// container-injected secrets; production deployments plug a vault-backed
// Resolver in its place.
type EnvResolver struct{}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

func (r *EnvResolver) Resolve(ctx context.Context, handle string) (protocol.Credentials, error) {
	if handle == "" {
		return protocol.Credentials{}, nil
	}

	prefix := "SECRET_" + normalize(handle)
	creds := protocol.Credentials{
		Username: os.Getenv(prefix + "_USERNAME"),
		Password: os.Getenv(prefix + "_PASSWORD"),
		Token:    os.Getenv(prefix + "_TOKEN"),
	}
	if creds.Username == "" && creds.Password == "" && creds.Token == "" {
		return protocol.Credentials{}, fmt.Errorf("%w: handle %q", ErrNotFound, handle)
	}
	return creds, nil
}

func normalize(handle string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(handle) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
