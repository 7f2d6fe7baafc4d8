// Package audit buffers security events and delivers them to a sink.
//
// [Dispatcher] relays [Event] values to a [Sink] on its own goroutine so a
// slow sink never stalls a login or refresh. With DropIfFull set, a full
// buffer drops the event and bumps [Dispatcher.Dropped] instead of blocking.
//
// The package decides nothing about which events exist; the engine and the
// flow functions choose what to emit.
package audit
