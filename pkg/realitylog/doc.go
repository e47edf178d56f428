// Package realitylog wires the logging tool together: configuration, the
// persistence backend, authentication, per-operator consoles, realtime
// projections and the HTTP/WebSocket surface.
//
// # Getting Started
//
//	# Write a sample configuration
//	realitylog config init
//
//	# Create the schema and load starter reference data
//	realitylog migrate
//	realitylog seed --default
//
//	# Create the first admin
//	realitylog user create --email producer@example.com --password secret1 --role admin
//
//	# Serve the API on :8080
//	realitylog run
//
// # Backends
//
// The store is selected with --backend or store.backend in realitylog.toml:
//
//	memory     - in-process, lost on exit (default)
//	sqlite     - GORM over a local file
//	postgres   - GORM over PostgreSQL (POSTGRES_DSN)
//	surrealdb  - SurrealDB over WebSocket (SURREALDB_URL, SURREALDB_NS, ...)
//
// SurrealDB pushes changes through live queries. The other backends are wrapped
// in a notifying store that publishes successful writes to an in-process broker.
//
// To move an installation to another backend, copy into it and switch over:
//
//	realitylog --backend sqlite copy --to-backend surrealdb --to-surrealdb-url ws://db:8000/rpc
//
// For the HTTP API, see [App.Router].
package realitylog
