package registry

import (
	"log/slog"

	"github.com/meigma/vpt/registry/cache"
	"github.com/meigma/vpt/registry/oras"
)

// Option configures a Client.
type Option func(*Client)

// WithOCIClient sets a custom OCI client.
// If not set, a default ORAS-based client is created.
//
// When a custom OCIClient is provided, pass-through options like
// WithPlainHTTP and WithDockerConfig are ignored.
func WithOCIClient(c OCIClient) Option {
	return func(client *Client) {
		client.oci = c
	}
}

// WithPlainHTTP enables plain HTTP (no TLS) for registries.
// This is passed through to the default ORAS client.
func WithPlainHTTP(enabled bool) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithPlainHTTP(enabled))
	}
}

// WithDockerConfig enables reading credentials from ~/.docker/config.json.
// This is passed through to the default ORAS client.
func WithDockerConfig() Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithDockerConfig())
	}
}

// WithStaticCredentials sets username/password credentials for one registry.
// This is passed through to the default ORAS client.
func WithStaticCredentials(registry, username, password string) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithStaticCredentials(registry, username, password))
	}
}

// WithStaticToken sets a bearer token for one registry.
// This is passed through to the default ORAS client.
func WithStaticToken(registry, token string) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithStaticToken(registry, token))
	}
}

// WithAnonymous disables credentials entirely.
// This is passed through to the default ORAS client.
func WithAnonymous() Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithAnonymous())
	}
}

// WithUserAgent sets the User-Agent header for requests.
// This is passed through to the default ORAS client.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithUserAgent(ua))
	}
}

// WithCache sets the cache for table layers, keyed by layer digest.
func WithCache(bc cache.BlobCache) Option {
	return func(c *Client) {
		c.cache = bc
	}
}

// WithLogger sets the logger for client operations.
// It is also passed to the default ORAS client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}
