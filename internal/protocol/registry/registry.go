// Package registry dispatches a configuration onto its protocol adapter.
// Dispatch happens once per execution, so the orchestrator itself never
// inspects protocol types.
package registry

import (
	"context"
	"fmt"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol/blob"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol/ftp"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol/web"
)

// ForConfiguration builds the adapter matching cfg.Protocol. The settings
// variant must match the declared protocol; a mismatch is a stored-data
// defect and surfaces as an error, never a panic.
func ForConfiguration(ctx context.Context, cfg domain.Configuration, creds protocol.Credentials) (protocol.Adapter, error) {
	switch cfg.Protocol {
	case domain.ProtocolFTP:
		if cfg.FTP == nil {
			return nil, fmt.Errorf("configuration %s: protocol %s without matching settings", cfg.ID, cfg.Protocol)
		}
		return ftp.New(*cfg.FTP, creds), nil

	case domain.ProtocolWeb:
		if cfg.Web == nil {
			return nil, fmt.Errorf("configuration %s: protocol %s without matching settings", cfg.ID, cfg.Protocol)
		}
		return web.New(*cfg.Web, creds), nil

	case domain.ProtocolBlob:
		if cfg.Blob == nil {
			return nil, fmt.Errorf("configuration %s: protocol %s without matching settings", cfg.ID, cfg.Protocol)
		}
		return blob.New(ctx, *cfg.Blob, creds)

	default:
		return nil, fmt.Errorf("configuration %s: unknown protocol %q", cfg.ID, cfg.Protocol)
	}
}
