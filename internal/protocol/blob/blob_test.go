package blob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol"
)

type fakeListClient struct {
	pages []*s3.ListObjectsV2Output
	err   error
	calls int
}

func (f *fakeListClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func object(key string, size int64, modified time.Time) s3types.Object {
	return s3types.Object{
		Key:          aws.String(key),
		Size:         aws.Int64(size),
		LastModified: aws.Time(modified),
	}
}

func newTestAdapter(client listClient) *Adapter {
	return &Adapter{
		settings: domain.BlobSettings{Container: "tenant-feeds"},
		client:   client,
		clock:    func() time.Time { return time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC) },
	}
}

func TestList_MatchesPrefixAndPattern(t *testing.T) {
	modified := time.Date(2026, 2, 23, 4, 0, 0, 0, time.UTC)
	client := &fakeListClient{pages: []*s3.ListObjectsV2Output{{
		Contents: []s3types.Object{
			object("feeds/2026/02/23/claims_a.csv", 100, modified),
			object("feeds/2026/02/23/claims_b.csv", 200, modified),
			object("feeds/2026/02/23/manifest.json", 10, modified),
			object("feeds/2026/02/23/", 0, modified), // directory marker
		},
		IsTruncated: aws.Bool(false),
	}}}

	a := newTestAdapter(client)
	files, err := a.List(context.Background(), protocol.ListRequest{
		Path:        "feeds/2026/02/23",
		NamePattern: "claims_*.csv",
	})
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "claims_a.csv", files[0].Name)
	assert.Equal(t, "s3://tenant-feeds/feeds/2026/02/23/claims_a.csv", files[0].Locator)
	assert.Equal(t, int64(100), files[0].Size)
	assert.Equal(t, modified, files[0].LastModified)
}

func TestList_FollowsContinuationTokens(t *testing.T) {
	modified := time.Now()
	client := &fakeListClient{pages: []*s3.ListObjectsV2Output{
		{
			Contents:              []s3types.Object{object("in/a.csv", 1, modified)},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents:    []s3types.Object{object("in/b.csv", 2, modified)},
			IsTruncated: aws.Bool(false),
		},
	}}

	a := newTestAdapter(client)
	files, err := a.List(context.Background(), protocol.ListRequest{Path: "in", Extension: ".csv"})
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, 2, client.calls)
}

type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestList_ErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{"missing bucket is not found", &apiError{code: "NoSuchBucket"}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, protocol.ErrNotFound)
		}},
		{"bad access key is auth failure", &apiError{code: "InvalidAccessKeyId"}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, protocol.ErrAuthFailed)
		}},
		{"expired delegation token is auth failure", &apiError{code: "ExpiredToken"}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, protocol.ErrAuthFailed)
		}},
		{"slow down is retryable", &apiError{code: "SlowDown"}, func(t *testing.T, err error) {
			assert.True(t, protocol.IsRetryable(err))
		}},
		{"malformed xml is a protocol error", &apiError{code: "MalformedXML"}, func(t *testing.T, err error) {
			var pe *protocol.ProtocolError
			assert.True(t, errors.As(err, &pe))
		}},
		{"plain transport error is retryable", errors.New("dial tcp: i/o timeout"), func(t *testing.T, err error) {
			assert.True(t, protocol.IsRetryable(err))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(&fakeListClient{err: tt.err})
			_, err := a.List(context.Background(), protocol.ListRequest{Path: "in"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestNew_RejectsUnknownAuthMode(t *testing.T) {
	_, err := New(context.Background(), domain.BlobSettings{AuthMode: "managed-identity"}, protocol.Credentials{})
	var pe *protocol.ProtocolError
	require.True(t, errors.As(err, &pe))
}
