// Package netserver accepts client TCP connections and runs one session per
// connection.
//
// The acceptor re-arms after every connection; a failed accept is logged and
// retried with a short backoff instead of stopping the server. Each session
// owns its socket and a fixed 1024-byte buffer and loops read, dispatch,
// write. Whatever a single read returns is handed to the Handler as exactly
// one command: a command split across TCP segments is not reassembled.
//
// Sessions run on their own goroutines over blocking net.Conn calls; the Go
// runtime's network poller plays the part of the event loop, and each
// connection still has a single writer.
//
// When server.max_connections is set the listener is wrapped with
// golang.org/x/net/netutil.LimitListener, so extra clients wait in the accept
// backlog until a session ends.
package netserver
