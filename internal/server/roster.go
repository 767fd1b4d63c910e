package server

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/identity"
)

func encodeRoster(online []identity.Identity) ([]byte, error) {
	return json.Marshal(RosterFrame{Online: online})
}

// broadcastRoster pushes a fresh roster snapshot to every registered
// connection, bound or not. It runs on the hub goroutine. Connections that
// cannot take the payload are dropped, and the survivors get one more
// snapshot without them.
func (h *Hub) broadcastRoster() {
	for {
		failed, recipients, err := h.registry.pushRoster(encodeRoster)
		if err != nil {
			h.log.Error("Encoding roster failed", zap.Error(err))
			return
		}
		h.rosterBroadcasts.Add(1)
		h.log.Debug("Broadcast roster", zap.Int("recipients", recipients))

		if len(failed) == 0 || !h.dropSlow(failed) {
			return
		}
	}
}
