package oras

import (
	"context"
	"errors"
	"strings"

	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// dockerHub is the canonical host all Docker Hub aliases map to.
const dockerHub = "docker.io"

// dockerHubAliases are the server addresses docker login may have stored
// Docker Hub credentials under, in lookup order.
var dockerHubAliases = []string{
	"https://index.docker.io/v1/",
	"index.docker.io",
	"registry-1.docker.io",
	"docker.io",
}

var errReadOnlyStore = errors.New("oci: static credential store is read-only")

// DefaultCredentialStore returns a credential store that reads from
// Docker config (~/.docker/config.json) and credential helpers.
func DefaultCredentialStore() (credentials.Store, error) {
	store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
	if err != nil {
		return nil, err
	}
	return &aliasStore{Store: store}, nil
}

// StaticCredentials returns a read-only store holding a username and
// password for one registry.
func StaticCredentials(registry, username, password string) credentials.Store {
	return &staticStore{
		host: canonicalHost(registry),
		cred: auth.Credential{Username: username, Password: password},
	}
}

// StaticToken returns a read-only store holding a bearer token for one registry.
func StaticToken(registry, token string) credentials.Store {
	return &staticStore{
		host: canonicalHost(registry),
		cred: auth.Credential{AccessToken: token},
	}
}

// staticStore answers for a single host.
type staticStore struct {
	host string
	cred auth.Credential
}

func (s *staticStore) Get(_ context.Context, serverAddress string) (auth.Credential, error) {
	if canonicalHost(serverAddress) == s.host {
		return s.cred, nil
	}
	return auth.EmptyCredential, nil
}

func (s *staticStore) Put(context.Context, string, auth.Credential) error {
	return errReadOnlyStore
}

func (s *staticStore) Delete(context.Context, string) error {
	return errReadOnlyStore
}

// aliasStore retries Docker Hub lookups under every address docker login
// is known to use. Writes go straight to the wrapped store.
type aliasStore struct {
	credentials.Store
}

func (s *aliasStore) Get(ctx context.Context, serverAddress string) (auth.Credential, error) {
	cred, err := s.Store.Get(ctx, serverAddress)
	if err == nil && !isEmptyCredential(cred) {
		return cred, nil
	}
	if canonicalHost(serverAddress) != dockerHub {
		return cred, err
	}
	for _, alias := range dockerHubAliases {
		if alias == serverAddress {
			continue
		}
		if aliasCred, aliasErr := s.Store.Get(ctx, alias); aliasErr == nil && !isEmptyCredential(aliasCred) {
			return aliasCred, nil
		}
	}
	return cred, err
}

// canonicalHost strips scheme and path from addr and folds Docker Hub
// aliases into one name. Ports are kept except on Docker Hub.
func canonicalHost(addr string) string {
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	addr, _, _ = strings.Cut(addr, "/")
	switch hostname(addr) {
	case "docker.io", "index.docker.io", "registry-1.docker.io":
		return dockerHub
	}
	return addr
}

// hostname returns the host part of host[:port], keeping IPv6 brackets.
func hostname(hostport string) string {
	if strings.HasPrefix(hostport, "[") {
		if end := strings.LastIndex(hostport, "]"); end != -1 {
			return hostport[:end+1]
		}
		return hostport
	}
	if colon := strings.LastIndex(hostport, ":"); colon != -1 {
		return hostport[:colon]
	}
	return hostport
}

// isEmptyCredential reports whether cred carries no authentication data.
func isEmptyCredential(cred auth.Credential) bool {
	return cred.Username == "" && cred.Password == "" && cred.AccessToken == "" && cred.RefreshToken == ""
}
