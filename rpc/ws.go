package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"stakevault/core/events"
	"stakevault/observability"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleEventsWS streams the durable event journal over a websocket. The
// optional cursor query parameter resumes after a previously seen sequence;
// the backlog past the cursor is replayed before live events.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	journal := s.node.Journal()
	if journal == nil {
		http.Error(w, "event journal unavailable", http.StatusServiceUnavailable)
		return
	}

	var cursor uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	observability.RPC().WSClientOpened()
	defer observability.RPC().WSClientClosed()

	if err := s.streamEvents(r.Context(), conn, journal, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, journal *events.Journal, cursor uint64) error {
	updates, cancel, backlog, err := journal.Subscribe(ctx, cursor)
	if err != nil {
		return err
	}
	defer cancel()

	for _, record := range backlog {
		if err := writeEventRecord(ctx, conn, record); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEventRecord(ctx, conn, record); err != nil {
				return err
			}
		}
	}
}

func writeEventRecord(ctx context.Context, conn *websocket.Conn, record events.StoredEvent) error {
	payload := EventRecord{
		Sequence:   record.Sequence,
		Type:       record.Type,
		Attributes: record.Attributes,
		EmittedAt:  record.EmittedAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
