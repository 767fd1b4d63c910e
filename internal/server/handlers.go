// Package server exposes HTTP handlers, including WebSocket upgrades, message
// history, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/identity"
	"github.com/Tyrowin/relaychat/internal/store"
)

// WebSocketHandler upgrades the request and hands the connection to the hub.
// The credential is taken from the handshake (cookie or bearer header) and
// resolved before registration; a failed resolution leaves the connection
// unbound but still connected.
func WebSocketHandler(hub *Hub, resolver *identity.Resolver) http.HandlerFunc {
	log := hub.logger()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(log),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		token := identity.TokenFromRequest(r, currentConfig().Auth.CookieName)
		id, authErr := resolver.Resolve(token)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("WebSocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		if authErr != nil {
			client.log.Info("Connection left unbound", zap.Error(authErr))
		} else {
			client.WithIdentity(id)
		}

		// The hub launches the pump goroutines once the client is registered.
		if !hub.Register(client) {
			client.closeConnection()
		}
	}
}

// HistoryHandler returns the conversation between the caller and the user
// named by the {userId} path value, oldest first.
func HistoryHandler(messages store.MessageStore, verifier identity.Verifier) http.HandlerFunc {
	resolver := identity.NewResolver(verifier)

	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := resolver.Resolve(identity.TokenFromRequest(r, currentConfig().Auth.CookieName))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		peer := r.PathValue("userId")
		if peer == "" {
			http.Error(w, "missing user id", http.StatusBadRequest)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		history, err := messages.History(r.Context(), caller.UserID, peer, limit)
		if err != nil {
			http.Error(w, "failed to load messages", http.StatusInternalServerError)
			return
		}
		if history == nil {
			history = []store.Message{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(history)
	}
}

// OnlineHandler returns the current roster without opening a WebSocket.
func OnlineHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RosterFrame{Online: hub.registry.Roster()})
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "server is running")
}

// TestPageHandler serves an HTML test page that connects to the WebSocket
// endpoint, shows the roster, and sends messages to a chosen recipient.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Relay Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages, #online {
            border: 1px solid #ccc;
            padding: 10px;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #messages { height: 300px; overflow-y: scroll; }
        input[type="text"] { width: 240px; padding: 5px; margin-right: 10px; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Relay Chat Test</h1>
    <div id="status" class="status disconnected">Disconnected</div>
    <div>
        <input type="text" id="recipient" placeholder="Recipient user id">
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <h3>Online</h3>
    <div id="online"></div>
    <div id="messages"></div>
    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const onlineDiv = document.getElementById('online');
        const messageInput = document.getElementById('messageInput');
        const recipientInput = document.getElementById('recipient');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(text) {
            const el = document.createElement('div');
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() { updateStatus(true); };
            ws.onmessage = function(event) {
                const data = JSON.parse(event.data);
                if (data.online) {
                    onlineDiv.textContent = data.online.map(p => p.userName + ' (' + p.userId + ')').join(', ');
                } else {
                    addMessage(data.sender + ': ' + (data.text || data.fileUrl));
                }
            };
            ws.onclose = function() { updateStatus(false); ws = null; };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({recipient: recipientInput.value.trim(), text: text}));
                addMessage('You: ' + text);
                messageInput.value = '';
            }
        }
    </script>
</body>
</html>`
