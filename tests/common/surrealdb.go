// Package common provides shared test infrastructure.
package common

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Set PLANHOUND_TEST_SURREALDB to a ws://host:port/rpc endpoint to run the
// store tests against an already-running SurrealDB instead of a container.
const endpointEnv = "PLANHOUND_TEST_SURREALDB"

var (
	endpointOnce sync.Once
	endpoint     string
	endpointErr  error
	terminate    func()
)

// SurrealDBEndpoint returns the WebSocket RPC address of a SurrealDB
// reachable for the duration of the test run, starting a shared container
// on first use unless PLANHOUND_TEST_SURREALDB points at one already.
// Credentials are root/root either way.
func SurrealDBEndpoint(t *testing.T) string {
	t.Helper()

	endpointOnce.Do(func() {
		if ext := os.Getenv(endpointEnv); ext != "" {
			endpoint = ext
			return
		}
		endpoint, terminate, endpointErr = startContainer()
	})

	if endpointErr != nil {
		t.Fatalf("SurrealDB unavailable: %v", endpointErr)
	}
	return endpoint
}

func startContainer() (string, func(), error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--user", "root", "--pass", "root"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("8000/tcp"),
				wait.ForLog("Started web server"),
			).WithDeadline(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start SurrealDB container: %w", err)
	}

	stop := func() { _ = container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		stop()
		return "", nil, fmt.Errorf("resolve SurrealDB host: %w", err)
	}
	port, err := container.MappedPort(ctx, "8000/tcp")
	if err != nil {
		stop()
		return "", nil, fmt.Errorf("resolve SurrealDB port: %w", err)
	}

	return fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()), stop, nil
}

// StopSurrealDB terminates the shared container if one was started.
// Call from TestMain when container reuse across packages is not wanted.
func StopSurrealDB() {
	if terminate != nil {
		terminate()
	}
}
