package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"

	"otp-gateway/internal/config"
	"otp-gateway/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

var errNoCertificate = errors.New("no TLS certificate available")

// TLSManager resolves serving certificates from, in order: ACME, the
// configured key pair, and (outside production) a self-signed pair.
type TLSManager struct {
	server     config.ServerConfig
	production bool
	autoCert   *autocert.Manager
	devCert    *DevCertGenerator
	mu         sync.Mutex
	staticCert *tls.Certificate
	selfSigned *tls.Certificate
}

func NewTLSManager(cfg *config.Config) *TLSManager {
	manager := &TLSManager{
		server:     cfg.Server,
		production: cfg.IsProduction(),
		devCert:    NewDevCertGenerator(cfg.Server.AutoCertDir),
	}

	if cfg.Server.AutoCert && cfg.Server.EnableTLS {
		manager.setupAutoCert()
	}

	return manager
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.server.AutoCertDir, 0o700); err != nil {
		util.Warn("Could not create autocert directory", zap.Error(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.server.Domain),
		Cache:      autocert.DirCache(m.server.AutoCertDir),
		Email:      m.server.Email,
	}

	util.Info("AutoCert configured",
		zap.String("domain", m.server.Domain),
		zap.String("cache_dir", m.server.AutoCertDir))
}

func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		util.Warn("AutoCert certificate unavailable", zap.String("server_name", hello.ServerName), zap.Error(err))
	}

	if cert, err := m.fileCertificate(); err == nil {
		return cert, nil
	} else if !errors.Is(err, errNoCertificate) {
		util.Warn("Configured TLS key pair unusable", zap.Error(err))
	}

	if m.production {
		return nil, errNoCertificate
	}
	return m.selfSignedCertificate()
}

func (m *TLSManager) fileCertificate() (*tls.Certificate, error) {
	if m.server.CertFile == "" || m.server.KeyFile == "" {
		return nil, errNoCertificate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staticCert != nil {
		return m.staticCert, nil
	}

	cert, err := tls.LoadX509KeyPair(m.server.CertFile, m.server.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}
	m.staticCert = &cert
	return m.staticCert, nil
}

func (m *TLSManager) selfSignedCertificate() (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selfSigned != nil {
		return m.selfSigned, nil
	}

	hosts := []string{m.server.Domain, "localhost", "127.0.0.1", "::1"}
	cert, err := m.devCert.GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	m.selfSigned = &cert
	return m.selfSigned, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
