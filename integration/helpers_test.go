//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	vpt "github.com/meigma/vpt/core"
	"github.com/meigma/vpt/registry"
)

const testVendor uint32 = 0x1234_5678

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the address of a shared registry:2 container,
// starting it on first use.
func getRegistry(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	registryOnce.Do(func() {
		registryAddr, registryErr = startRegistryContainer(context.Background())
	})

	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}

	return registryAddr
}

// startRegistryContainer starts a registry:2 container and returns the host:port address.
func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	// Cleanup is handled by the testcontainers reaper.

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status == http.StatusOK || status == http.StatusUnauthorized
}

// newTestClient creates a registry client for the plain-HTTP test registry.
func newTestClient(tb testing.TB, opts ...registry.Option) *registry.Client {
	tb.Helper()

	base := []registry.Option{
		registry.WithPlainHTTP(true),
		registry.WithAnonymous(),
	}
	return registry.New(append(base, opts...)...)
}

// testRef returns a unique reference for a test in the shared registry.
func testRef(addr, testName string) string {
	return testRefWithTag(addr, testName, "v1")
}

func testRefWithTag(addr, testName, tag string) string {
	repo := strings.ToLower(strings.NewReplacer("_", "-", "/", "-").Replace(testName))
	return fmt.Sprintf("%s/test/%s:%s", addr, repo, tag)
}

// buildTable returns a table holding programs in the order given.
func buildTable(tb testing.TB, programs map[string][]byte, order ...string) []byte {
	tb.Helper()

	b := vpt.NewBuilder(testVendor)
	for _, name := range order {
		b.AddString(name, programs[name])
	}
	table, err := b.Build()
	require.NoError(tb, err)
	return table
}

// makeCompressibleContent returns size bytes of repetitive text.
func makeCompressibleContent(size int) []byte {
	pattern := []byte("compressible program payload ")
	out := make([]byte, size)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}
