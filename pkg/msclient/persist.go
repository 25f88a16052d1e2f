package msclient

import (
	"context"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/cert"
	"github.com/syndicate-project/gateway/pkg/msclient/viewstore"
)

// seedFromStore loads a previously persisted view, if any, so the client
// has a usable volume/certificate set before the first network reload
// completes. Best-effort: a missing or unreadable store just means the
// client starts cold, same as before viewstore existed.
func (c *Client) seedFromStore(ctx context.Context) {
	if c.viewStore == nil {
		return
	}

	vol, err := c.viewStore.LoadVolume(c.volumeID)
	if err != nil {
		logger.Warn("msclient: load persisted volume view", logger.Err(err))
		return
	}
	if vol != nil {
		c.view.applyVolume(cert.Volume{
			VolumeID:      vol.VolumeID,
			Name:          vol.Name,
			BlockSize:     vol.BlockSize,
			VolumeVersion: vol.VolumeVersion,
			CertVersion:   vol.CertVersion,
			OwnerUserID:   vol.OwnerUserID,
			RootEntryID:   vol.RootEntryID,
			PublicKeyPEM:  vol.PublicKeyPEM,
			Signature:     vol.Signature,
		})
	}

	rows, err := c.viewStore.LoadCerts(c.volumeID)
	if err != nil {
		logger.Warn("msclient: load persisted certificate view", logger.Err(err))
		return
	}
	if len(rows) == 0 {
		return
	}
	certs := make([]cert.GatewayCert, len(rows))
	for i, r := range rows {
		certs[i] = cert.GatewayCert{
			GatewayID:    r.GatewayID,
			GatewayType:  cert.GatewayType(r.GatewayType),
			OwnerUserID:  r.OwnerUserID,
			Host:         r.Host,
			Port:         r.Port,
			Caps:         r.Caps,
			Version:      r.Version,
			PublicKeyPEM: r.PublicKeyPEM,
			BlockSize:    r.BlockSize,
			Signature:    r.Signature,
		}
	}
	c.view.mergeCerts(certs)
}

// persistView writes the currently held volume and certificate view back
// to the store, best-effort: a failed write only costs a cold start after
// the next restart, never correctness now.
func (c *Client) persistView(ctx context.Context) {
	if c.viewStore == nil {
		return
	}

	vol := c.view.Volume()
	if err := c.viewStore.SaveVolume(viewstore.VolumeRow{
		VolumeID:      vol.VolumeID,
		Name:          vol.Name,
		BlockSize:     vol.BlockSize,
		VolumeVersion: vol.VolumeVersion,
		CertVersion:   vol.CertVersion,
		OwnerUserID:   vol.OwnerUserID,
		RootEntryID:   vol.RootEntryID,
		PublicKeyPEM:  vol.PublicKeyPEM,
		Signature:     vol.Signature,
	}); err != nil {
		logger.Warn("msclient: persist volume view", logger.Err(err))
	}

	var rows []viewstore.CertRow
	for _, t := range []cert.GatewayType{cert.GatewayTypeUG, cert.GatewayTypeRG, cert.GatewayTypeAG} {
		for _, c := range c.view.CertsByType(t) {
			rows = append(rows, viewstore.CertRow{
				GatewayID:    c.GatewayID,
				VolumeID:     vol.VolumeID,
				GatewayType:  string(c.GatewayType),
				OwnerUserID:  c.OwnerUserID,
				Host:         c.Host,
				Port:         c.Port,
				Caps:         c.Caps,
				Version:      c.Version,
				PublicKeyPEM: c.PublicKeyPEM,
				BlockSize:    c.BlockSize,
				Signature:    c.Signature,
			})
		}
	}
	if err := c.viewStore.SaveCerts(rows); err != nil {
		logger.Warn("msclient: persist certificate view", logger.Err(err))
	}
}
