package testsupport

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/karloscodes/scopedb"
)

// TestServerOptions configures test server creation.
type TestServerOptions struct {
	// Models to auto-migrate in the test database
	Models []any

	Routes func(*scopedb.Server)

	// ServerConfig replaces scopedb.DefaultServerConfig.
	ServerConfig *scopedb.ServerConfig

	// Config replaces NewTestConfig.
	Config scopedb.Config

	// DisableMiddleware turns off the request logger and compression.
	DisableMiddleware bool
}

// TestServer wraps a scopedb server backed by an in-memory database.
type TestServer struct {
	t         *testing.T
	Server    *scopedb.Server
	App       *fiber.App
	DBManager *TestDBManager
	Logger    *slog.Logger
	Config    scopedb.Config
}

// NewTestServer creates a test server with an in-memory database.
func NewTestServer(t *testing.T, opts ...TestServerOptions) *TestServer {
	t.Helper()

	var options TestServerOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	db := SetupTestDB(t, TestDBOptions{Models: options.Models})
	dbManager := NewTestDBManager(db)
	logger := NewTestLogger()

	cfg := options.Config
	if cfg == nil {
		cfg = NewTestConfig()
	}

	serverCfg := options.ServerConfig
	if serverCfg == nil {
		serverCfg = scopedb.DefaultServerConfig()
	}
	serverCfg.Config = cfg
	serverCfg.Logger = logger
	serverCfg.DBManager = dbManager

	if options.DisableMiddleware {
		serverCfg.EnableRequestLogger = false
		serverCfg.EnableCompress = false
	}

	server, err := scopedb.NewServer(serverCfg)
	if err != nil {
		t.Fatalf("testsupport: failed to create test server: %v", err)
	}
	if options.Routes != nil {
		options.Routes(server)
	}

	return &TestServer{
		t:         t,
		Server:    server,
		App:       server.App(),
		DBManager: dbManager,
		Logger:    logger,
		Config:    cfg,
	}
}

// DB returns a direct handle on the test database, bypassing sessions.
func (ts *TestServer) DB() *gorm.DB {
	return ts.DBManager.GetConnection()
}

// Request performs a JSON request and returns the response.
func (ts *TestServer) Request(method, path string, body ...string) *http.Response {
	ts.t.Helper()

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = strings.NewReader(body[0])
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)

	resp, err := ts.App.Test(req, -1)
	if err != nil {
		ts.t.Fatalf("testsupport: request failed: %v", err)
	}
	return resp
}

// Get performs a GET request.
func (ts *TestServer) Get(path string) *http.Response {
	return ts.Request(fiber.MethodGet, path)
}

// Post performs a POST request with a JSON body.
func (ts *TestServer) Post(path, body string) *http.Response {
	return ts.Request(fiber.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (ts *TestServer) Put(path, body string) *http.Response {
	return ts.Request(fiber.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (ts *TestServer) Delete(path string) *http.Response {
	return ts.Request(fiber.MethodDelete, path)
}

// ReadBody reads and closes the response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("testsupport: read body: %v", err)
	}
	return string(b)
}
