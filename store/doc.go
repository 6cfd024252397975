// Package store groups the pointer persistence backends.
//
// Each backend implements [pointer.Store] and is selected at wiring time;
// nothing else in the module knows which one is in use.
//
// # Available Backends
//
//   - store/memory: in-process map, for tests and single-binary setups
//     where durability is not required.
//   - store/redis: hash-per-pointer over go-redis, for deployments that
//     already run Redis and can accept its persistence settings.
//   - store/postgres: pgx-backed with embedded schema migrations, the
//     recommended backend for production.
//
// All backends share the same semantics: Create rejects duplicates with
// farmcode.ErrPointerExists, reads of absent pointers return
// farmcode.ErrPointerNotFound, and List orders by creation time ascending.
package store
