package handshake

import (
	"github.com/caddyserver/tls13/extension"
	"github.com/caddyserver/tls13/wire"
)

// ApplyCertificateRequest implements spec.md §4.7: record the context
// the client's own Certificate message must echo, and mark this
// handshake as needing client authentication.
func (c *Context) ApplyCertificateRequest(body []byte) error {
	cr, err := extension.ParseCertificateRequest(wire.NewReader(body))
	if err != nil {
		return err
	}
	c.CertificateRequestContext = append([]byte(nil), cr.Context...)
	c.ClientAuth = true
	return nil
}
