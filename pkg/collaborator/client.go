// Package collaborator is the client side of the collaborator channel. A
// bridge running next to a page (a native-messaging host, a test harness or
// a headless browser driver) uses it to stream page metrics to the daemon
// and to carry out the daemon's requests inside the page.
package collaborator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Page is the page-side behaviour the client delegates to.
type Page interface {
	// Measure samples the page.
	Measure(ctx context.Context) (models.Metrics, error)
	// ShowTip renders a tip inside the page.
	ShowTip(tip models.Tip) error
	// Apply runs PAUSE_MEDIA_ELEMENTS, REDUCE_ANIMATIONS or OPTIMIZE_TAB.
	Apply(kind protocol.CollaboratorType, actions []string) error
}

// Options locate the daemon and tune the client.
type Options struct {
	TabID int
	// Addr is the loopback host:port of the collaborator listener. When
	// empty, SocketPath is used.
	Addr       string
	SocketPath string
	// SampleInterval sends ENERGY_DATA periodically. Zero disables it; the
	// daemon can still ask for samples with COLLECT_IMMEDIATE_METRICS.
	SampleInterval   time.Duration
	HandshakeTimeout time.Duration
}

// Client is one collaborator connection for one tab.
type Client struct {
	opts   Options
	page   Page
	ws     *websocket.Conn
	wmu    sync.Mutex
	logger *logrus.Entry
}

// Dial connects to the daemon's /ws/collaborator endpoint.
func Dial(ctx context.Context, opts Options, page Page, logger *logrus.Entry) (*Client, error) {
	if opts.TabID <= 0 {
		return nil, errors.New("tab id must be positive")
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	host := opts.Addr
	if host == "" {
		if opts.SocketPath == "" {
			return nil, errors.New("either an address or a socket path is required")
		}
		host = "unix"
		socket := opts.SocketPath
		dialer.NetDialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
	}
	u := url.URL{
		Scheme:   "ws",
		Host:     host,
		Path:     "/ws/collaborator",
		RawQuery: "tabId=" + strconv.Itoa(opts.TabID),
	}

	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect collaborator channel: %w", err)
	}
	return &Client{
		opts:   opts,
		page:   page,
		ws:     ws,
		logger: logger.WithField("tab", opts.TabID),
	}, nil
}

func (c *Client) write(msg protocol.CollaboratorMessage) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

// SendMetrics sends one ENERGY_DATA sample.
func (c *Client) SendMetrics(m models.Metrics) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return c.write(protocol.CollaboratorMessage{Type: protocol.MsgEnergyData, TabID: c.opts.TabID, Metrics: &m})
}

// Run serves the connection until ctx is done or the daemon disconnects.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		c.Close()
	}()
	if c.opts.SampleInterval > 0 {
		go c.sample(ctx)
	}

	for {
		var msg protocol.CollaboratorMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if msg.Reply {
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) sample(ctx context.Context) {
	ticker := time.NewTicker(c.opts.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m, err := c.page.Measure(ctx)
			if err != nil {
				c.logger.WithError(err).Debug("Sampling failed")
				continue
			}
			if err := c.SendMetrics(m); err != nil {
				c.logger.WithError(err).Debug("Failed to send metrics")
				return
			}
		}
	}
}

func (c *Client) handle(ctx context.Context, msg protocol.CollaboratorMessage) {
	reply := protocol.CollaboratorMessage{Type: msg.Type, ID: msg.ID, TabID: c.opts.TabID, Reply: true, OK: true}

	var err error
	switch msg.Type {
	case protocol.MsgPing:
	case protocol.MsgCollectImmediateMetrics:
		var m models.Metrics
		m, err = c.page.Measure(ctx)
		if err == nil {
			if m.Timestamp.IsZero() {
				m.Timestamp = time.Now()
			}
			reply.Metrics = &m
		}
	case protocol.MsgShowEnergyTip:
		if msg.Tip == nil {
			err = errors.New("tip data missing")
			break
		}
		err = c.page.ShowTip(*msg.Tip)
	case protocol.MsgPauseMediaElements, protocol.MsgReduceAnimations, protocol.MsgOptimizeTab:
		err = c.page.Apply(msg.Type, msg.Actions)
	default:
		err = fmt.Errorf("unsupported message %q", msg.Type)
	}
	if err != nil {
		c.logger.WithError(err).WithField("type", msg.Type).Debug("Request failed")
		reply.OK = false
		reply.Error = err.Error()
	}

	// Fire-and-forget messages carry no id and get no reply.
	if msg.ID == "" {
		return
	}
	if werr := c.write(reply); werr != nil {
		c.logger.WithError(werr).Debug("Failed to reply")
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.wmu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.wmu.Unlock()
	return c.ws.Close()
}
