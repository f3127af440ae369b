// Package stream maintains the live subscription to the leader wallet's
// activity and drives the copy pipeline.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"solana-copy-bot/internal/decoder"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// session is one live logsSubscribe connection.
type session struct {
	conn  *websocket.Conn
	subID uint64
}

// subscribeResult is the JSON-RPC reply to the subscription request.
type subscribeResult struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// logsNotification is one streamed event.
type logsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string      `json:"signature"`
				Err       interface{} `json:"err"`
				Logs      []string    `json:"logs"`
			} `json:"value"`
		} `json:"result"`
		Subscription uint64 `json:"subscription"`
	} `json:"params"`
}

// dial connects and subscribes to all logs mentioning the leader wallet at
// processed commitment, the lowest-latency level the stream offers.
func dial(ctx context.Context, wsURL, leaderWallet string) (*session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{"mentions": []string{leaderWallet}},
			map[string]interface{}{"commitment": "processed"},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send subscription: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read subscription reply: %w", err)
	}

	var reply subscribeResult
	if err := json.Unmarshal(raw, &reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("parse subscription reply: %w", err)
	}
	if reply.Error != nil {
		conn.Close()
		return nil, fmt.Errorf("subscription rejected: %d %s", reply.Error.Code, reply.Error.Message)
	}

	var subID uint64
	if err := json.Unmarshal(reply.Result, &subID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("parse subscription id: %w", err)
	}

	log.Info().Uint64("subID", subID).Str("wallet", leaderWallet).Msg("subscribed to leader activity")
	return &session{conn: conn, subID: subID}, nil
}

// next blocks until the next log event arrives. Non-notification frames
// (ping replies, unsubscribe confirmations) are skipped.
func (s *session) next() (decoder.LogEvent, error) {
	for {
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return decoder.LogEvent{}, err
		}

		var note logsNotification
		if err := json.Unmarshal(raw, &note); err != nil {
			log.Warn().Err(err).Msg("unparsable stream frame")
			continue
		}
		if note.Method != "logsNotification" {
			continue
		}

		return decoder.LogEvent{
			Signature: note.Params.Result.Value.Signature,
			Slot:      note.Params.Result.Context.Slot,
			Failed:    note.Params.Result.Value.Err != nil,
			Logs:      note.Params.Result.Value.Logs,
		}, nil
	}
}

// keepAlive pings the connection until the context ends.
func (s *session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) close() {
	s.conn.Close()
}
