// Package ftp implements the file-transfer protocol adapter.
package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/textproto"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol"
)

const defaultTimeout = 30 * time.Second

type Adapter struct {
	settings domain.FTPSettings
	creds    protocol.Credentials
	clock    func() time.Time
}

func New(settings domain.FTPSettings, creds protocol.Credentials) *Adapter {
	return &Adapter{
		settings: settings,
		creds:    creds,
		clock:    time.Now,
	}
}

// List connects, authenticates, lists the resolved path and matches entries
// by name pattern and extension. The connection lives for one call only.
func (a *Adapter) List(ctx context.Context, req protocol.ListRequest) ([]domain.DiscoveredFile, error) {
	timeout := a.settings.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	port := a.settings.Port
	if port == 0 {
		port = 21
	}
	addr := net.JoinHostPort(a.settings.Host, fmt.Sprintf("%d", port))

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	}
	if a.settings.ExplicitTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: a.settings.Host}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, classify(err)
	}
	defer conn.Quit()

	if err := conn.Login(a.creds.Username, a.creds.Password); err != nil {
		return nil, classify(err)
	}

	entries, err := conn.List(req.Path)
	if err != nil {
		return nil, classify(err)
	}

	now := a.clock().UTC()
	var files []domain.DiscoveredFile
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if !protocol.MatchName(e.Name, req.NamePattern, req.Extension) {
			continue
		}
		files = append(files, domain.DiscoveredFile{
			Name:         e.Name,
			Locator:      "ftp://" + a.settings.Host + path.Join("/", req.Path, e.Name),
			Size:         int64(e.Size),
			LastModified: e.Time,
			DiscoveredAt: now,
		})
	}

	files, truncated := protocol.Truncate(files)
	if truncated {
		log.Printf("ftp: listing for %s truncated at %d entries", req.Path, protocol.MaxListResults)
	}
	return files, nil
}

// classify maps FTP reply codes and transport failures onto the shared
// adapter taxonomy. 530 is a login failure, 550 means the path does not
// exist; other permanent replies are protocol errors and everything at the
// transport layer is retryable.
func classify(err error) error {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch {
		case proto.Code == ftp.StatusNotLoggedIn || proto.Code == 332:
			return fmt.Errorf("%w: %v", protocol.ErrAuthFailed, err)
		case proto.Code == ftp.StatusFileUnavailable:
			return protocol.ErrNotFound
		case proto.Code >= 400 && proto.Code < 500:
			// Transient negative completion per RFC 959.
			return &protocol.NetworkError{Err: err}
		default:
			return &protocol.ProtocolError{Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &protocol.NetworkError{Err: err}
	}

	return &protocol.NetworkError{Err: err}
}
