// Package blob implements the blob-store adapter over the S3 API.
package blob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol"
)

const (
	defaultTimeout = 30 * time.Second
	pageSize       = 1000
)

// listClient is the slice of the S3 API the adapter uses.
type listClient interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Adapter struct {
	settings domain.BlobSettings
	client   listClient
	clock    func() time.Time
}

// New builds an adapter for the configured container. Credential material
// maps onto the configured auth mode: account-key uses the key pair alone,
// delegation-token additionally carries a session token.
func New(ctx context.Context, settings domain.BlobSettings, creds protocol.Credentials) (*Adapter, error) {
	var provider aws.CredentialsProvider
	switch settings.AuthMode {
	case domain.BlobAuthDelegationToken:
		provider = credentials.NewStaticCredentialsProvider(creds.Username, creds.Password, creds.Token)
	case domain.BlobAuthAccountKey, "":
		provider = credentials.NewStaticCredentialsProvider(creds.Username, creds.Password, "")
	default:
		return nil, &protocol.ProtocolError{Err: fmt.Errorf("unknown blob auth mode %q", settings.AuthMode)}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(settings.Region),
		awsconfig.WithCredentialsProvider(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Adapter{settings: settings, client: client, clock: time.Now}, nil
}

// List walks objects under the resolved key prefix, matching the bare object
// name (the part after the last slash) against the name pattern and
// extension filter. Pagination is internal, bounded by MaxListResults.
func (a *Adapter) List(ctx context.Context, req protocol.ListRequest) ([]domain.DiscoveredFile, error) {
	timeout := a.settings.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prefix := strings.TrimPrefix(req.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	now := a.clock().UTC()
	var files []domain.DiscoveredFile
	var continuation *string

	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.settings.Container),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			MaxKeys:           aws.Int32(pageSize),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, classify(err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			name := path.Base(key)
			if name == "" || strings.HasSuffix(key, "/") {
				continue
			}
			if !protocol.MatchName(name, req.NamePattern, req.Extension) {
				continue
			}
			f := domain.DiscoveredFile{
				Name:         name,
				Locator:      "s3://" + a.settings.Container + "/" + key,
				Size:         aws.ToInt64(obj.Size),
				DiscoveredAt: now,
			}
			if obj.LastModified != nil {
				f.LastModified = *obj.LastModified
			}
			files = append(files, f)
		}

		if len(files) >= protocol.MaxListResults || !aws.ToBool(out.IsTruncated) {
			break
		}
		continuation = out.NextContinuationToken
	}

	files, truncated := protocol.Truncate(files)
	if truncated {
		log.Printf("blob: listing for %s/%s truncated at %d entries", a.settings.Container, prefix, protocol.MaxListResults)
	}
	return files, nil
}

// classify maps S3 API failures onto the shared taxonomy. A missing bucket
// or prefix is NotFound; credential rejections are auth failures; timeouts
// and transport faults are retryable.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound", "NoSuchKey":
			return protocol.ErrNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"ExpiredToken", "InvalidToken", "TokenRefreshRequired":
			return fmt.Errorf("%w: %v", protocol.ErrAuthFailed, apiErr.ErrorCode())
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return &protocol.NetworkError{Err: err}
		default:
			return &protocol.ProtocolError{Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &protocol.NetworkError{Err: err}
	}
	return &protocol.NetworkError{Err: err}
}
