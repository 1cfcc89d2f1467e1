package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
)

// CertManager obtains and renews certificates for a fixed set of domains.
type CertManager struct {
	domains []string
	logger  *slog.Logger
	cfg     *certmagic.Config
}

// NewCertManager configures certmagic for domains. Outside production the
// Let's Encrypt staging CA is used.
func NewCertManager(domains []string, email string, production bool, logger *slog.Logger) *CertManager {
	certmagic.DefaultACME.Email = email
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.CA = caFor(production)

	return &CertManager{
		domains: domains,
		logger:  logger,
		cfg:     certmagic.NewDefault(),
	}
}

func caFor(production bool) string {
	if production {
		return certmagic.LetsEncryptProductionCA
	}
	return certmagic.LetsEncryptStagingCA
}

// ListenAndServe obtains certificates for the configured domains, then serves
// handler over TLS on port 443 until ctx is cancelled.
func (cm *CertManager) ListenAndServe(ctx context.Context, handler http.Handler) error {
	if len(cm.domains) == 0 {
		return errors.New("no TLS domains configured")
	}

	cm.logger.Info("starting TLS server", "domains", cm.domains)
	if err := cm.cfg.ManageSync(ctx, cm.domains); err != nil {
		return fmt.Errorf("manage domains: %w", err)
	}

	ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", certmagic.HTTPSPort), cm.cfg.TLSConfig())
	if err != nil {
		return fmt.Errorf("tls listen: %w", err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	cm.logger.Info("serving HTTPS", "port", certmagic.HTTPSPort)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
