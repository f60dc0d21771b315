package grpc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/carverauto/faultradar/pkg/models"
)

const (
	certManagerPerms = 0700
)

var (
	errMissingCerts = fmt.Errorf("missing certificates")
)

// CertificateManager helps manage TLS certificates.
type CertificateManager struct {
	config *models.SecurityConfig
}

func NewCertificateManager(config *models.SecurityConfig) *CertificateManager {
	return &CertificateManager{config: config}
}

func (cm *CertificateManager) EnsureCertificateDirectory() error {
	return os.MkdirAll(cm.config.CertDir, certManagerPerms)
}

// ValidateCertificates reports which certificate files the configured
// security mode needs but cannot find. Checking up front produces a
// clear startup error instead of a handshake failure later.
func (cm *CertificateManager) ValidateCertificates() error {
	var required []string

	switch cm.config.Mode {
	case models.SecurityModeTLS:
		required = []string{"root.pem", "server.pem", "server-key.pem"}
	case models.SecurityModeMTLS:
		required = []string{"root.pem", "server.pem", "server-key.pem", "client.pem", "client-key.pem"}
	case models.SecurityModeNone, models.SecurityModeSpiffe:
		return nil
	default:
		return nil
	}

	var missing []string

	for _, file := range required {
		path := filepath.Join(cm.config.CertDir, file)

		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, file)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errMissingCerts, strings.Join(missing, ", "))
	}

	return nil
}
