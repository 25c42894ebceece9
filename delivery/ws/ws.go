// Package ws pumps a delivery subscription over a gorilla/websocket
// connection. It is one possible transport behind the fan-out; the
// engine itself never sees it.
package ws

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/virtualcompanion/companion-sdk/delivery"
)

// Frame is the JSON wire shape of one fan-out event.
type Frame struct {
	Type      string    `json:"type"`
	Content   string    `json:"content,omitempty"`
	Index     int       `json:"index,omitempty"`
	Done      bool      `json:"done,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config configures the pump.
type Config struct {
	// WriteTimeout bounds each frame write. Default 10s.
	WriteTimeout time.Duration

	// PingInterval is how often protocol-level pings are sent.
	// Default 45s. Application heartbeats arrive as frames regardless.
	PingInterval time.Duration
}

// Pump forwards subscription events to the connection until the
// subscription closes, the context is cancelled, or a write fails.
// The subscription is closed on exit, so a dead connection
// unregisters itself; in-flight generations are unaffected.
func Pump(ctx context.Context, conn *websocket.Conn, sub *delivery.Subscription, cfg Config) error {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 45 * time.Second
	}

	defer sub.Close()

	pinger := time.NewTicker(cfg.PingInterval)
	defer pinger.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteJSON(frameFor(ev)); err != nil {
				log.Printf("[DELIVERY] Dropping websocket for user %s: %v", sub.UserID(), err)
				return err
			}

		case <-pinger.C:
			deadline := time.Now().Add(cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return err
			}

		case <-ctx.Done():
			deadline := time.Now().Add(cfg.WriteTimeout)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
			return ctx.Err()
		}
	}
}

func frameFor(ev delivery.Event) Frame {
	if ev.Type == delivery.EventHeartbeat {
		return Frame{Type: string(delivery.EventHeartbeat), Timestamp: ev.Timestamp}
	}
	return Frame{
		Type:      string(delivery.EventChunk),
		Content:   ev.Chunk.Content,
		Index:     ev.Chunk.Index,
		Done:      ev.Chunk.Done,
		Error:     ev.Chunk.Error,
		Timestamp: ev.Timestamp,
	}
}
