// Package scopedb runs Fiber handlers and background jobs inside a
// per-unit-of-work session pool.
//
// Every request gets a fresh pool.Pool. Sessions opened during the request
// (the primary GORM session, extra sessions, a bun session, a deferred cache
// session) register themselves in it, duplicates included. When the handler
// returns without an error and with a status below 400, the pool commits the
// sessions that have pending changes, one at a time and in registration
// order. A failed commit stops the walk, leaves earlier commits in place and
// turns the response into a 500. Whatever the outcome, the pool is released
// and its sessions discard anything left buffered.
//
// # Handlers
//
//	app, err := scopedb.New("ledger",
//	    scopedb.WithMigrations(&Note{}),
//	    scopedb.WithRoutes(func(s *scopedb.Server) {
//	        s.Post("/notes", createNote, &scopedb.RouteConfig{WriteConcurrency: true})
//	    }),
//	)
//
//	func createNote(ctx *scopedb.Context) error {
//	    ctx.DB().Add(&Note{Title: ctx.FormValue("title")})
//	    return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true})
//	}
//
// Write routes hold a slot of the write limiter until the commit finishes.
//
// # Jobs
//
// A JobDispatcher calls each Processor on an interval. Every batch runs in
// its own pool through pool.Scope, with the same commit rules as a request.
//
// # Errors
//
// Handlers return oops errors for anything a client should see. The default
// error handler renders them as {"code", "error", "message"} and hides the
// details of unexpected errors outside development.
package scopedb
