package scopedb

import (
	"gorm.io/gorm"

	"github.com/karloscodes/scopedb/database"
)

// Config abstracts runtime configuration access.
// config.Config implements it; applications may provide their own.
type Config interface {
	// IsDevelopment returns true if running in development mode.
	IsDevelopment() bool

	// IsProduction returns true if running in production mode.
	IsProduction() bool

	// IsTest returns true if running in test mode.
	IsTest() bool

	// GetPort returns the HTTP server port.
	GetPort() string
}

// DBManager abstracts database connection management.
// database.Manager implements it.
type DBManager interface {
	// GetConnection returns a GORM database connection.
	// Returns nil if the connection is unavailable.
	GetConnection() *gorm.DB
}

// WriteConfigProvider is implemented by configs and managers that carry a
// write retry policy for session commits.
type WriteConfigProvider interface {
	WriteConfig() database.TransactionConfig
}

// CommitPolicyProvider is implemented by configs that decide whether request
// pools are committed automatically.
type CommitPolicyProvider interface {
	ShouldCommitOnSuccess() bool
}
