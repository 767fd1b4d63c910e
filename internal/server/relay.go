package server

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/store"
)

// parseFrame decodes raw into a draft from sender. Frames without a
// recipient or without any content are malformed.
func parseFrame(senderID string, raw []byte) (store.Draft, error) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return store.Draft{}, errors.Wrap(ErrMalformedFrame, err.Error())
	}

	draft := store.Draft{
		SenderID:    senderID,
		RecipientID: strings.TrimSpace(frame.recipient()),
		Text:        frame.Text,
		FileURL:     frame.fileURL(),
	}
	if draft.RecipientID == "" {
		return store.Draft{}, errors.Wrap(ErrMalformedFrame, "missing recipient")
	}
	if strings.TrimSpace(draft.Text) == "" && draft.FileURL == "" {
		return store.Draft{}, errors.Wrap(ErrMalformedFrame, "missing text and file")
	}
	return draft, nil
}

// OnInboundFrame relays one frame from sender: it persists the message and
// then enqueues it on every live connection bound to the recipient. It
// returns the number of connections the message was handed to.
//
// Frames from unbound senders and malformed frames are dropped before
// anything is persisted. A store failure aborts the relay of this frame
// only. A recipient connection whose queue is full is dropped without
// affecting delivery to the others.
func (h *Hub) OnInboundFrame(ctx context.Context, sender *Client, raw []byte) (int, error) {
	from, bound := sender.Identity()
	if !bound {
		return 0, ErrUnboundSender
	}

	draft, err := parseFrame(from.UserID, raw)
	if err != nil {
		return 0, err
	}

	msg, err := h.store.Persist(ctx, draft)
	if err != nil {
		return 0, errors.Wrap(err, "persist message")
	}

	payload, err := json.Marshal(DeliveryFrame{
		ID:        msg.ID,
		Text:      msg.Text,
		Sender:    msg.SenderID,
		Recipient: msg.RecipientID,
		FileURL:   msg.FileURL,
	})
	if err != nil {
		return 0, errors.Wrap(err, "encode delivery")
	}

	delivered, failed := h.registry.deliverToUser(msg.RecipientID, payload)
	for _, c := range failed {
		derr := &DeliveryError{Handle: c.handle}
		h.log.Warn("Delivery failed", zap.String("message", msg.ID), zap.Error(derr))
		h.Unregister(c)
	}
	return delivered, nil
}
