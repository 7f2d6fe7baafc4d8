// Package store defines the persisted user record and the storage contract
// consumed by the nickauth engine.
//
// # Concurrency
//
// Every mutation after creation goes through [Store.Update], which applies a
// [MutateFunc] to the current record and commits it only if no other writer
// changed the record in between (version compare-and-set). On contention the
// function is re-run against fresh state, so callers express conditional
// updates ("increment if", "remove if present") inside the closure.
//
// # Backends
//
//   - store/redis: JSON records plus unique indexes, Lua insert, WATCH/MULTI update.
//   - store/postgres: pgx via database/sql, goose migrations, SELECT ... FOR UPDATE.
//
// # What this package must NOT do
//
//   - Hash passwords or sign tokens (the engine prepares records before writing).
//   - Serialize PasswordHash to clients; use [NewPublicProfile] at response boundaries.
package store
