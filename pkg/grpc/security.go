// Package grpc pkg/grpc/security.go provides secure gRPC communication options
package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/carverauto/faultradar/pkg/models"
)

const defaultWorkloadSocket = "unix:/run/spire/sockets/agent.sock"

// NoSecurityProvider implements SecurityProvider with no security (development only).
type NoSecurityProvider struct{}

func (*NoSecurityProvider) GetClientCredentials(context.Context) (grpc.DialOption, error) {
	return grpc.WithTransportCredentials(insecure.NewCredentials()), nil
}

func (*NoSecurityProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	return grpc.Creds(insecure.NewCredentials()), nil
}

func (*NoSecurityProvider) Close() error {
	return nil
}

// TLSProvider implements SecurityProvider with one-way TLS: the server
// presents a certificate, clients verify it against the CA.
type TLSProvider struct {
	config      *models.SecurityConfig
	clientCreds credentials.TransportCredentials
	serverCreds credentials.TransportCredentials
}

func NewTLSProvider(config *models.SecurityConfig) (*TLSProvider, error) {
	if config == nil {
		return nil, errSecurityConfigRequired
	}

	if config.CertDir == "" {
		return nil, errCertDirRequired
	}

	provider := &TLSProvider{config: config}

	var err error

	provider.clientCreds, err = loadCAOnlyCredentials(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadClientCreds, err)
	}

	provider.serverCreds, err = loadServerCredentials(config, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadServerCreds, err)
	}

	return provider, nil
}

func (p *TLSProvider) GetClientCredentials(context.Context) (grpc.DialOption, error) {
	return grpc.WithTransportCredentials(p.clientCreds), nil
}

func (p *TLSProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	return grpc.Creds(p.serverCreds), nil
}

func (*TLSProvider) Close() error {
	return nil
}

// MTLSProvider implements SecurityProvider with mutual TLS.
type MTLSProvider struct {
	config      *models.SecurityConfig
	clientCreds credentials.TransportCredentials
	serverCreds credentials.TransportCredentials
	closeOnce   sync.Once
}

func NewMTLSProvider(config *models.SecurityConfig) (*MTLSProvider, error) {
	if config == nil {
		return nil, errSecurityConfigRequired
	}

	if config.CertDir == "" {
		return nil, errCertDirRequired
	}

	provider := &MTLSProvider{config: config}

	log.Printf("Initializing mTLS provider from %s", config.CertDir)

	var err error

	provider.clientCreds, err = loadClientCredentials(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadClientCreds, err)
	}

	provider.serverCreds, err = loadServerCredentials(config, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadServerCreds, err)
	}

	return provider, nil
}

func (p *MTLSProvider) Close() error {
	p.closeOnce.Do(func() {
		// Nothing held open; certificates are loaded into memory.
	})

	return nil
}

func (p *MTLSProvider) GetClientCredentials(context.Context) (grpc.DialOption, error) {
	return grpc.WithTransportCredentials(p.clientCreds), nil
}

func (p *MTLSProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	return grpc.Creds(p.serverCreds), nil
}

func loadCA(config *models.SecurityConfig) (*x509.CertPool, error) {
	caFile := filepath.Join(config.CertDir, "root.pem")

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToReadCACert, err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errFailedToAppendCACert
	}

	return caPool, nil
}

// loadCAOnlyCredentials builds client-side credentials that verify the
// server but present no certificate of their own.
func loadCAOnlyCredentials(config *models.SecurityConfig) (credentials.TransportCredentials, error) {
	caPool, err := loadCA(config)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		RootCAs:    caPool,
		ServerName: config.ServerName,
		MinVersion: tls.VersionTLS13,
	}

	return credentials.NewTLS(tlsConfig), nil
}

func loadClientCredentials(config *models.SecurityConfig) (credentials.TransportCredentials, error) {
	log.Printf("Loading client credentials from %s", config.CertDir)

	clientCert := filepath.Join(config.CertDir, "client.pem")
	clientKey := filepath.Join(config.CertDir, "client-key.pem")

	certificate, err := tls.LoadX509KeyPair(clientCert, clientKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadClientCert, err)
	}

	caPool, err := loadCA(config)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{certificate},
		RootCAs:      caPool,
		ServerName:   config.ServerName,
		MinVersion:   tls.VersionTLS13,
	}

	return credentials.NewTLS(tlsConfig), nil
}

func loadServerCredentials(config *models.SecurityConfig, mutual bool) (credentials.TransportCredentials, error) {
	log.Printf("Loading server credentials from %s", config.CertDir)

	serverCert := filepath.Join(config.CertDir, "server.pem")
	serverKey := filepath.Join(config.CertDir, "server-key.pem")

	certificate, err := tls.LoadX509KeyPair(serverCert, serverKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadServerCert, err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{certificate},
		MinVersion:   tls.VersionTLS13,
	}

	if mutual {
		caPool, err := loadCA(config)
		if err != nil {
			return nil, err
		}

		tlsConfig.ClientCAs = caPool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return credentials.NewTLS(tlsConfig), nil
}

// SpiffeProvider implements SecurityProvider using SPIFFE workload API.
type SpiffeProvider struct {
	config    *models.SecurityConfig
	client    *workloadapi.Client
	source    *workloadapi.X509Source
	closeOnce sync.Once
}

func NewSpiffeProvider(ctx context.Context, config *models.SecurityConfig) (*SpiffeProvider, error) {
	if config == nil {
		return nil, errSecurityConfigRequired
	}

	if config.TrustDomain != "" {
		if _, err := spiffeid.TrustDomainFromString(config.TrustDomain); err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidTrustDomain, err)
		}
	}

	if config.WorkloadSocket == "" {
		config.WorkloadSocket = defaultWorkloadSocket
	}

	client, err := workloadapi.New(
		ctx,
		workloadapi.WithAddr(config.WorkloadSocket),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedWorkloadAPIClient, err)
	}

	source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClient(client),
	)
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("%w: %w", errFailedToCreateX509Source, err)
	}

	return &SpiffeProvider{
		config: config,
		client: client,
		source: source,
	}, nil
}

// authorizer restricts peers to the configured trust domain, or any
// SPIFFE identity when no trust domain is set.
func (p *SpiffeProvider) authorizer() (tlsconfig.Authorizer, error) {
	if p.config.TrustDomain == "" {
		return tlsconfig.AuthorizeAny(), nil
	}

	trustDomain, err := spiffeid.TrustDomainFromString(p.config.TrustDomain)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidTrustDomain, err)
	}

	return tlsconfig.AuthorizeMemberOf(trustDomain), nil
}

func (p *SpiffeProvider) GetClientCredentials(context.Context) (grpc.DialOption, error) {
	authorizer, err := p.authorizer()
	if err != nil {
		return nil, err
	}

	tlsConfig := tlsconfig.MTLSClientConfig(p.source, p.source, authorizer)

	return grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)), nil
}

func (p *SpiffeProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	authorizer, err := p.authorizer()
	if err != nil {
		return nil, err
	}

	tlsConfig := tlsconfig.MTLSServerConfig(p.source, p.source, authorizer)

	return grpc.Creds(credentials.NewTLS(tlsConfig)), nil
}

func (p *SpiffeProvider) Close() error {
	var err error

	p.closeOnce.Do(func() {
		if p.source != nil {
			err = p.source.Close()
			if err != nil {
				log.Printf("Failed to close X.509 source: %v", err)

				return
			}
		}

		if p.client != nil {
			err = p.client.Close()
		}
	})

	return err
}

// NewSecurityProvider creates the appropriate security provider based on mode.
func NewSecurityProvider(ctx context.Context, config *models.SecurityConfig) (SecurityProvider, error) {
	if config == nil {
		log.Printf("No security config provided, using no security")
		return &NoSecurityProvider{}, nil
	}

	log.Printf("Creating security provider with mode: %s", config.Mode)

	switch config.Mode {
	case models.SecurityModeNone:
		return &NoSecurityProvider{}, nil
	case models.SecurityModeTLS:
		return NewTLSProvider(config)
	case models.SecurityModeMTLS:
		return NewMTLSProvider(config)
	case models.SecurityModeSpiffe:
		return NewSpiffeProvider(ctx, config)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownSecurityMode, config.Mode)
	}
}
