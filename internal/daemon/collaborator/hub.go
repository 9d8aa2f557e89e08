// Package collaborator manages the websocket connections of the content
// collaborators running inside tracked pages.
package collaborator

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// MetricsFunc receives ENERGY_DATA samples.
type MetricsFunc func(tabID int, m models.Metrics)

// conn is one collaborator connection.
type conn struct {
	tabID int
	ws    *websocket.Conn
	wmu   sync.Mutex
	done  chan struct{}
}

func (c *conn) write(msg protocol.CollaboratorMessage) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

// Hub routes messages between the daemon and collaborators, one per tab.
type Hub struct {
	mu        sync.RWMutex
	conns     map[int]*conn
	pending   map[string]chan protocol.CollaboratorMessage
	onMetrics MetricsFunc
	upgrader  websocket.Upgrader
	logger    *logrus.Entry
}

// NewHub creates a hub. onMetrics may be set later with OnMetrics.
func NewHub(logger *logrus.Entry) *Hub {
	return &Hub{
		conns:   make(map[int]*conn),
		pending: make(map[string]chan protocol.CollaboratorMessage),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Collaborators connect from arbitrary page origins over the local socket.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// OnMetrics registers the ENERGY_DATA callback.
func (h *Hub) OnMetrics(fn MetricsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMetrics = fn
}

// ServeHTTP upgrades /ws/collaborator?tabId=N and serves the connection until
// it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(r.URL.Query().Get("tabId"))
	if err != nil || tabID <= 0 {
		http.Error(w, "tabId query parameter required", http.StatusBadRequest)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("Collaborator upgrade failed")
		return
	}

	c := &conn{tabID: tabID, ws: ws, done: make(chan struct{})}
	h.register(c)
	defer h.unregister(c)

	go h.keepalive(c)
	h.readLoop(c)
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	old := h.conns[c.tabID]
	h.conns[c.tabID] = c
	h.mu.Unlock()

	if old != nil {
		old.ws.Close()
	}
	h.logger.WithField("tab", c.tabID).Debug("Collaborator connected")
}

func (h *Hub) unregister(c *conn) {
	close(c.done)
	c.ws.Close()

	h.mu.Lock()
	if h.conns[c.tabID] == c {
		delete(h.conns, c.tabID)
	}
	h.mu.Unlock()
	h.logger.WithField("tab", c.tabID).Debug("Collaborator disconnected")
}

func (h *Hub) readLoop(c *conn) {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := protocol.DecodeCollaboratorMessage(data)
		if err != nil {
			h.logger.WithError(err).WithField("tab", c.tabID).Debug("Dropping malformed collaborator message")
			continue
		}
		h.dispatch(c, msg)
	}
}

func (h *Hub) dispatch(c *conn, msg protocol.CollaboratorMessage) {
	if msg.Reply {
		h.mu.RLock()
		ch, ok := h.pending[msg.ID]
		h.mu.RUnlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
		return
	}

	switch msg.Type {
	case protocol.MsgEnergyData:
		if msg.Metrics == nil {
			return
		}
		h.mu.RLock()
		fn := h.onMetrics
		h.mu.RUnlock()
		if fn != nil {
			fn(c.tabID, *msg.Metrics)
		}
	case protocol.MsgPing:
		// A collaborator may check the daemon is alive too.
		_ = c.write(protocol.CollaboratorMessage{Type: protocol.MsgPing, ID: msg.ID, Reply: true, OK: true})
	default:
		h.logger.WithField("type", msg.Type).Debug("Ignoring unexpected collaborator message")
	}
}

func (h *Hub) keepalive(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.wmu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Connected reports whether a collaborator for tabID is connected.
func (h *Hub) Connected(tabID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[tabID]
	return ok
}

// Count returns the number of connected collaborators.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send delivers msg to the collaborator of tabID without waiting for a reply.
func (h *Hub) Send(tabID int, msg protocol.CollaboratorMessage) error {
	h.mu.RLock()
	c, ok := h.conns[tabID]
	h.mu.RUnlock()
	if !ok {
		return tabwatterrors.CollaboratorUnavailable(tabID, nil)
	}
	msg.TabID = tabID
	if err := c.write(msg); err != nil {
		return tabwatterrors.CollaboratorUnavailable(tabID, err)
	}
	return nil
}

// Request sends msg and waits for the collaborator's reply or ctx.
func (h *Hub) Request(ctx context.Context, tabID int, msg protocol.CollaboratorMessage) (protocol.CollaboratorMessage, error) {
	msg.ID = uuid.NewString()
	ch := make(chan protocol.CollaboratorMessage, 1)

	h.mu.Lock()
	h.pending[msg.ID] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, msg.ID)
		h.mu.Unlock()
	}()

	if err := h.Send(tabID, msg); err != nil {
		return protocol.CollaboratorMessage{}, err
	}
	select {
	case reply := <-ch:
		if !reply.OK && reply.Error != "" {
			return reply, tabwatterrors.New(tabwatterrors.ErrCodeInternal, reply.Error).WithDetail("tabId", tabID)
		}
		return reply, nil
	case <-ctx.Done():
		return protocol.CollaboratorMessage{}, tabwatterrors.Wrap(ctx.Err(), tabwatterrors.ErrCodeTimeout,
			"collaborator did not reply").WithDetail("tabId", tabID)
	}
}

// Ping checks that the collaborator of tabID answers.
func (h *Hub) Ping(ctx context.Context, tabID int) error {
	_, err := h.Request(ctx, tabID, protocol.CollaboratorMessage{Type: protocol.MsgPing})
	return err
}

// CollectNow asks the collaborator to measure immediately. The sample itself
// arrives as a regular ENERGY_DATA message; a reply carrying metrics is
// forwarded the same way.
func (h *Hub) CollectNow(ctx context.Context, tabID int) error {
	reply, err := h.Request(ctx, tabID, protocol.CollaboratorMessage{Type: protocol.MsgCollectImmediateMetrics})
	if err != nil {
		return err
	}
	if reply.Metrics != nil {
		h.mu.RLock()
		fn := h.onMetrics
		h.mu.RUnlock()
		if fn != nil {
			fn(tabID, *reply.Metrics)
		}
	}
	return nil
}

// Close disconnects every collaborator.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.wmu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon shutting down"),
			time.Now().Add(writeWait))
		c.wmu.Unlock()
		c.ws.Close()
	}
}
