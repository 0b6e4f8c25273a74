// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"

	"qlkube/pkg/authz"
)

// graphql-transport-ws protocol message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// Protocol close codes.
const (
	closeBadRequest         = 4400
	closeUnauthorized       = 4401
	closeInitTimeout        = 4408
	closeDuplicateOperation = 4409
)

const wsSubprotocol = "graphql-transport-ws"

// connectionInitTimeout bounds how long a client may sit on an open
// socket without authenticating.
const connectionInitTimeout = 10 * time.Second

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// wsHandler upgrades /subscription requests and speaks the
// graphql-transport-ws protocol: connection_init carries the bearer
// token, subscribe starts an operation, the server answers with next,
// error and complete frames.
type wsHandler struct {
	schema   graphql.Schema
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newWSHandler(compiled graphql.Schema, logger *slog.Logger) *wsHandler {
	return &wsHandler{
		schema: compiled,
		logger: logger.With("component", "ws-handler"),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{wsSubprotocol},
			// The bearer token authenticates every operation; origin
			// checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	c := &wsConn{
		handler: h,
		conn:    conn,
		logger:  h.logger.With("remote", conn.RemoteAddr().String()),
		ops:     make(map[string]context.CancelFunc),
	}
	c.serve(r.Context())
}

// wsConn is the per-connection state: the negotiated token and the set
// of running operations.
type wsConn struct {
	handler *wsHandler
	conn    *websocket.Conn
	logger  *slog.Logger

	writeMu sync.Mutex

	opsMu sync.Mutex
	ops   map[string]context.CancelFunc

	token string
}

func (c *wsConn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.cancelAllOps()
		_ = c.conn.Close()
	}()

	if !c.awaitInit() {
		return
	}

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Websocket read failed", "error", err)
			}
			return
		}

		switch msg.Type {
		case msgPing:
			_ = c.write(wsMessage{Type: msgPong})
		case msgSubscribe:
			c.handleSubscribe(ctx, msg)
		case msgComplete:
			c.cancelOp(msg.ID)
		case msgConnectionInit:
			// Already initialized; a second init is a protocol violation.
			c.closeWith(closeBadRequest, "Too many initialization requests")
			return
		default:
			c.logger.Debug("Ignoring unknown message", "type", msg.Type)
		}
	}
}

// awaitInit reads the connection_init message, validates the token and
// acknowledges. Returns false when the connection must not proceed.
func (c *wsConn) awaitInit() bool {
	_ = c.conn.SetReadDeadline(time.Now().Add(connectionInitTimeout))
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	var msg wsMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.closeWith(closeInitTimeout, "Connection initialisation timeout")
		return false
	}
	if msg.Type != msgConnectionInit {
		c.closeWith(closeUnauthorized, "Unauthorized")
		return false
	}

	c.token = tokenFromInitPayload(msg.Payload)
	if c.token == "" {
		c.closeWith(closeUnauthorized, "Unauthorized")
		return false
	}

	return c.write(wsMessage{Type: msgConnectionAck}) == nil
}

// tokenFromInitPayload extracts the bearer token from the
// connection_init payload, accepting both "authorization" and
// "Authorization" keys with an optional "Bearer " prefix.
func tokenFromInitPayload(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"authorization", "Authorization"} {
		if raw, ok := fields[key].(string); ok {
			return bearerToken(raw)
		}
	}
	return ""
}

func (c *wsConn) handleSubscribe(ctx context.Context, msg wsMessage) {
	if msg.ID == "" {
		c.closeWith(closeBadRequest, "Subscribe message misses an id")
		return
	}

	var payload subscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Query == "" {
		c.closeWith(closeBadRequest, "Invalid subscribe payload")
		return
	}

	opCtx, opCancel := context.WithCancel(authz.WithToken(ctx, c.token))

	c.opsMu.Lock()
	if _, exists := c.ops[msg.ID]; exists {
		c.opsMu.Unlock()
		opCancel()
		c.closeWith(closeDuplicateOperation, "Subscriber for "+msg.ID+" already exists")
		return
	}
	c.ops[msg.ID] = opCancel
	c.opsMu.Unlock()

	results := graphql.Subscribe(graphql.Params{
		Schema:         c.handler.schema,
		RequestString:  payload.Query,
		OperationName:  payload.OperationName,
		VariableValues: payload.Variables,
		Context:        opCtx,
	})

	go c.runOp(opCtx, msg.ID, results)
}

// runOp pumps one operation's results to the client. A result carrying
// errors ends the operation with an error frame; normal stream close
// sends complete.
func (c *wsConn) runOp(ctx context.Context, id string, results chan *graphql.Result) {
	defer c.cancelOp(id)

	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				_ = c.write(wsMessage{ID: id, Type: msgComplete})
				return
			}
			if len(res.Errors) > 0 {
				payload, err := json.Marshal(res.Errors)
				if err != nil {
					c.logger.Error("Failed to marshal operation errors", "id", id, "error", err)
					return
				}
				_ = c.write(wsMessage{ID: id, Type: msgError, Payload: payload})
				return
			}
			payload, err := json.Marshal(res)
			if err != nil {
				c.logger.Error("Failed to marshal operation result", "id", id, "error", err)
				return
			}
			if err := c.write(wsMessage{ID: id, Type: msgNext, Payload: payload}); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) cancelOp(id string) {
	c.opsMu.Lock()
	cancel, ok := c.ops[id]
	delete(c.ops, id)
	c.opsMu.Unlock()
	if ok {
		cancel()
	}
}

func (c *wsConn) cancelAllOps() {
	c.opsMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.ops))
	for _, cancel := range c.ops {
		cancels = append(cancels, cancel)
	}
	c.ops = make(map[string]context.CancelFunc)
	c.opsMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (c *wsConn) write(msg wsMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) closeWith(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = c.conn.Close()
}
