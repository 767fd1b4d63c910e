// Package server wires HTTP handlers into a ServeMux for the relay
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/Tyrowin/relaychat/internal/identity"
	"github.com/Tyrowin/relaychat/internal/store"
)

// AccountRoutes registers the account endpoints on a mux.
type AccountRoutes interface {
	Mount(mux *http.ServeMux)
}

// Routes lists the collaborators the HTTP surface needs. Accounts and
// Messages are optional.
type Routes struct {
	Hub      *Hub
	Verifier identity.Verifier
	Messages store.MessageStore
	Accounts AccountRoutes
}

// SetupRoutes configures and returns the application handler with all routes.
func SetupRoutes(rt Routes) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(rt.Hub, identity.NewResolver(rt.Verifier)))
	mux.HandleFunc("/test", TestPageHandler)
	mux.HandleFunc("GET /online", OnlineHandler(rt.Hub))
	if rt.Messages != nil {
		mux.HandleFunc("GET /messages/{userId}", HistoryHandler(rt.Messages, rt.Verifier))
	}
	if rt.Accounts != nil {
		rt.Accounts.Mount(mux)
	}
	return withCORS(mux)
}
