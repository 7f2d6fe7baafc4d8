// Package redisstore implements store.Store on Redis.
//
// Records are JSON documents keyed by id. Nickname, email and reset-token
// lookups go through index keys that are written by the same Lua script
// (insert) or MULTI block (update) as the record itself.
package redisstore
