// Package ws fans terminal output out to websocket subscribers.
//
// The package implements:
//   - Hub: a bounded, drop-oldest broadcast ring of output chunks
//   - Subscription: one consumer's cursor into a Hub, with lag detection
//   - Server: the loopback websocket relay that forwards every chunk to
//     each connected client as a TerminalOutput frame
//
// Subscribers only see output published after they subscribe; history is
// served by the session scrollback, not by the relay.
package ws
