package testhelpers

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/config"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
)

// IntegrationSuite provides infrastructure for integration tests: a fake
// master, a scratch directory and a configuration loaded from disk.
type IntegrationSuite struct {
	T      *testing.T
	Logger *logger.Logger
	Ctx    context.Context
	Cancel context.CancelFunc
	Master *FakeMaster
	Dir    string
}

// NewIntegrationSuite creates a new integration test suite
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	log := logger.New(logger.Config{
		Level:  "debug",
		Format: "text",
	})

	return &IntegrationSuite{
		T:      t,
		Logger: log,
		Ctx:    ctx,
		Cancel: cancel,
		Master: NewFakeMaster(t),
		Dir:    t.TempDir(),
	}
}

// CodeplugYAML returns a two zone codeplug whose systems point at the
// fake master
func (s *IntegrationSuite) CodeplugYAML(authKey string) string {
	host, port := s.Master.Address()
	return fmt.Sprintf(`radioWide:
  model: APX6000
systems:
  - name: Test
    address: %s
    port: %d
    authKey: %s
zones:
  - name: Zone 1
    channels:
      - name: Dispatch
        system: Test
        tgid: 2001
        scanList: Ops
      - name: Tac 1
        system: Test
        tgid: 2002
  - name: Zone 2
    channels:
      - name: Fire
        system: Test
        tgid: 3001
scanLists:
  - name: Ops
    channels:
      - zone: Zone 1
        channel: Tac 1
`, host, port, authKey)
}

// WriteFile writes content under the suite directory and returns its path
func (s *IntegrationSuite) WriteFile(name, content string) string {
	s.T.Helper()
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		s.T.Fatalf("write %s: %v", name, err)
	}
	return path
}

// LoadConfig writes a configuration for rid with the fake master's
// codeplug, appends extra YAML and loads it the way the binary does
func (s *IntegrationSuite) LoadConfig(rid, extra string) *config.Config {
	s.T.Helper()
	cp := s.WriteFile("codeplug.yml", s.CodeplugYAML("secret"))
	body := fmt.Sprintf("radio:\n  rid: \"%s\"\n  codeplug: %s\n", rid, cp) + extra
	path := s.WriteFile("config.yaml", body)

	cfg, err := config.Load(path)
	if err != nil {
		s.T.Fatalf("load config: %v", err)
	}
	return cfg
}

// GetFreePort gets a free port for testing
func (s *IntegrationSuite) GetFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		s.T.Fatal(err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		s.T.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// Cleanup cleans up resources
func (s *IntegrationSuite) Cleanup() {
	s.Master.Close()
	s.Cancel()
}

// WaitFor waits for a condition to be true
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually asserts that a condition becomes true within timeout
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	s.T.Helper()
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("Assertion failed: %s", message)
	}
}
