package docker

import (
	"net/http"
	"path/filepath"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"

	"github.com/loggate-io/loggate/pkg/config"
)

// newClient builds a Docker API client from the source configuration.
// With no overrides it follows the standard DOCKER_HOST environment; a
// cert_path switches the transport to mutual TLS for remote daemons.
func newClient(cfg config.DockerConfig) (*client.Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}

	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	if cfg.CertPath != "" {
		tlsCfg, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:             filepath.Join(cfg.CertPath, "ca.pem"),
			CertFile:           filepath.Join(cfg.CertPath, "cert.pem"),
			KeyFile:            filepath.Join(cfg.CertPath, "key.pem"),
			InsecureSkipVerify: !cfg.TLSVerify,
		})
		if err != nil {
			return nil, err
		}

		opts = append(opts, client.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		}))
	}

	return client.NewClientWithOpts(opts...)
}
