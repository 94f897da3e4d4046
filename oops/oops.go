// Package oops provides friendly, coded errors for HTTP handlers.
//
// Applications register error codes once at startup with a message template
// and HTTP status, then return oops.New(code, args...) from handlers. The
// default error handler renders them as {"code", "error", "message"}.
package oops

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Code identifies a registered error.
type Code string

// Definition describes how a code is presented to clients.
type Definition struct {
	// Message is a fmt template filled with the args given to New.
	Message string

	// Status is the HTTP status. Default: 400.
	Status int
}

// Error is a friendly error carrying a code, status and client message.
type Error struct {
	Code    Code
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// WithCause returns a copy of e wrapping cause. The cause is logged but
// never shown to clients.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// Registry maps codes to definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[Code]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[Code]Definition)}
}

// Register adds or replaces the definition of code.
func (r *Registry) Register(code Code, def Definition) {
	if def.Status == 0 {
		def.Status = http.StatusBadRequest
	}
	r.mu.Lock()
	r.defs[code] = def
	r.mu.Unlock()
}

// Lookup returns the definition of code.
func (r *Registry) Lookup(code Code) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[code]
	return def, ok
}

// New builds an error for code. Unknown codes produce a 500.
func (r *Registry) New(code Code, args ...any) *Error {
	def, ok := r.Lookup(code)
	if !ok {
		return &Error{
			Code:    code,
			Status:  http.StatusInternalServerError,
			Message: fmt.Sprintf("unknown error code %q", code),
		}
	}
	msg := def.Message
	if len(args) > 0 {
		msg = fmt.Sprintf(def.Message, args...)
	}
	return &Error{Code: code, Status: def.Status, Message: msg}
}

var defaultRegistry = NewRegistry()

// Register adds code to the default registry.
func Register(code Code, status int, message string) {
	defaultRegistry.Register(code, Definition{Message: message, Status: status})
}

// New builds an error for code from the default registry.
func New(code Code, args ...any) *Error {
	return defaultRegistry.New(code, args...)
}

// Text builds an uncoded friendly error.
func Text(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
