// Package server wires HTTP handlers into a ServeMux.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func SetupRoutes(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.Health)
	mux.HandleFunc("/users", h.Users)
	mux.HandleFunc("/stats", h.Stats)
	mux.HandleFunc("/ws", h.WebSocket)
	return mux
}
