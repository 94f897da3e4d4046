package testsupport

import (
	"io"
	"log/slog"
)

// TestConfig implements scopedb.Config for testing.
type TestConfig struct {
	port            string
	commitOnSuccess bool
}

// NewTestConfig creates a test configuration that commits request pools on
// success.
func NewTestConfig() *TestConfig {
	return &TestConfig{port: "0", commitOnSuccess: true}
}

func (c *TestConfig) IsDevelopment() bool { return false }
func (c *TestConfig) IsProduction() bool  { return false }
func (c *TestConfig) IsTest() bool        { return true }
func (c *TestConfig) GetPort() string     { return c.port }

// ShouldCommitOnSuccess implements scopedb.CommitPolicyProvider.
func (c *TestConfig) ShouldCommitOnSuccess() bool { return c.commitOnSuccess }

// WithoutAutoCommit disables the end-of-request commit.
func (c *TestConfig) WithoutAutoCommit() *TestConfig {
	c.commitOnSuccess = false
	return c
}

// NewTestLogger creates a slog.Logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
