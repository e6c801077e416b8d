// Command tls13client dials a TLS 1.3 server, drives the handshake to
// completion, and reports the negotiated parameters. It exists to
// exercise the whole module end to end the way caddy's own cmd package
// exercises the rest of that codebase.
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caddyserver/tls13/alert"
	"github.com/caddyserver/tls13/config"
	"github.com/caddyserver/tls13/handshake"
	"github.com/caddyserver/tls13/internal/certverify"
	"github.com/caddyserver/tls13/internal/clientcert"
	"github.com/caddyserver/tls13/internal/recordlayer"
	"github.com/caddyserver/tls13/metrics"
	"github.com/caddyserver/tls13/session"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath  string
		serverName  string
		timeout     time.Duration
		insecure    bool
		clientCert  string
		clientKey   string
	)

	cmd := &cobra.Command{
		Use:   "tls13client",
		Short: "Dial a server and report the negotiated TLS 1.3 parameters",
		Long: `tls13client drives a client-side TLS 1.3 handshake against a
server and prints the negotiated mode, ciphersuite, and ALPN protocol
once it completes. It performs a single dial and does not read
post-handshake NewSessionTicket messages, so no session ticket is
cached for resumption.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDial(cmd, dialOptions{
				configPath: configPath,
				serverName: serverName,
				timeout:    timeout,
				insecure:   insecure,
				clientCert: clientCert,
				clientKey:  clientKey,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML client configuration file (required)")
	cmd.Flags().StringVar(&serverName, "server-name", "", "DNS name to validate the server certificate against (defaults to the config endpoint's host)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "dial and handshake timeout")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip server certificate chain validation (testing only)")
	cmd.Flags().StringVar(&clientCert, "client-cert", "", "PEM certificate chain to present if the server requests client authentication")
	cmd.Flags().StringVar(&clientKey, "client-key", "", "PEM private key matching --client-cert")
	cmd.MarkFlagRequired("config")

	return cmd
}

type dialOptions struct {
	configPath string
	serverName string
	timeout    time.Duration
	insecure   bool
	clientCert string
	clientKey  string
}

var ticketStore = session.NewStore()

func runDial(cmd *cobra.Command, opts dialOptions) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("tls13client: build logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	serverName := opts.serverName
	if serverName == "" {
		if host, _, err := net.SplitHostPort(cfg.Endpoint); err == nil {
			serverName = host
		} else {
			serverName = cfg.Endpoint
		}
	}

	var cert handshake.CertificateProvider
	if opts.clientCert != "" {
		c, err := clientcert.Load(opts.clientCert, opts.clientKey)
		if err != nil {
			return err
		}
		cert = c
	}

	verifier := &certverify.Verifier{ServerName: serverName, InsecureSkipVerify: opts.insecure}

	prior, _ := ticketStore.Get(cfg.Endpoint)
	ctx, err := handshake.NewContext(cfg, prior)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", cfg.Endpoint, opts.timeout)
	if err != nil {
		return fmt.Errorf("tls13client: dial %s: %w", cfg.Endpoint, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(opts.timeout))

	rl := recordlayer.New(conn)
	driver := handshake.NewDriver(ctx, rl, verifier, cert, ticketStore, logger)

	metrics.HandshakeStarted()
	start := time.Now()

	for ctx.State != handshake.StateHandshakeOver {
		ev, err := driver.Step()
		if err != nil {
			metrics.HandshakeAborted(alertKind(err))
			return fmt.Errorf("tls13client: handshake: %w", err)
		}
		if ev == handshake.EventServerHelloTLS12 {
			return fmt.Errorf("tls13client: server does not support TLS 1.3")
		}
	}

	metrics.HandshakeCompleted(modeName(ctx.Mode), time.Since(start).Seconds())

	fmt.Fprintf(cmd.OutOrStdout(), "handshake complete: mode=%s suite=0x%04x alpn=%q\n",
		modeName(ctx.Mode), ctx.Suite.ID, ctx.ALPNSelected)
	return nil
}

func modeName(m handshake.Mode) string {
	switch m {
	case handshake.ModePSK:
		return "psk"
	case handshake.ModePSKEphemeral:
		return "psk_dhe"
	default:
		return "dhe"
	}
}

func alertKind(err error) string {
	var a *alert.Error
	if errors.As(err, &a) {
		return a.Kind.String()
	}
	return "unknown"
}
