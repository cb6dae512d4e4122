// Package server runs the termchat broker.
//
// A Listener accepts TCP connections and the HTTP Handlers upgrade WebSocket
// requests; both wrap the connection in a Transport and hand a Client to the
// Hub. Each Client authenticates its peer against the shared broker.State,
// then runs an ingest goroutine and a fan-out loop until the transport fails.
// Server ties these together with the event bus and process lifecycle.
package server
