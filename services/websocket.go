package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/auth"
	"github.com/praptisiva25/WorkBud/config"
	"github.com/praptisiva25/WorkBud/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	requestTimeout = 10 * time.Second

	// An escaped astral rune is twelve bytes of JSON ("\ud83d\ude00"), so a
	// frame carrying maxContentLength runes plus its envelope fits.
	maxFrameSize = 12*maxContentLength + 4096
)

var errClientClosed = errors.New("client closed")

// Gateway authenticates socket connections and runs the per-connection
// event loop on top of the Dispatcher.
type Gateway struct {
	auth       auth.Authenticator
	threads    *ThreadDirectory
	messages   *MessageLog
	dispatcher *Dispatcher
	realtime   config.Realtime
	upgrader   websocket.Upgrader
	log        *zap.Logger

	handlers map[string]func(*Client, models.Inbound)
}

func NewGateway(a auth.Authenticator, threads *ThreadDirectory, messages *MessageLog, d *Dispatcher,
	rt config.Realtime, allowedOrigins []string, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		auth:       a,
		threads:    threads,
		messages:   messages,
		dispatcher: d,
		realtime:   rt,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	g.handlers = map[string]func(*Client, models.Inbound){
		models.EventJoin:  g.handleJoin,
		models.EventLeave: g.handleLeave,
		models.EventSend:  g.handleSend,
		models.EventPing:  g.handlePing,
	}
	return g
}

// ServeWs authenticates, upgrades and starts the client's pumps. Requests
// without a verifiable identity are rejected before the upgrade.
func (g *Gateway) ServeWs(c *gin.Context) {
	userID, err := g.auth.Authenticate(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": string(apperror.Unauthenticated), "message": apperror.MessageOf(err)})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote an HTTP error
		g.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := newClient(userID, conn, g)
	g.dispatcher.Register(client)
	g.log.Info("session connected", zap.String("user_id", userID), zap.String("session_id", client.id))

	go client.writePump()
	go client.readPump()
}

func (g *Gateway) dispatch(c *Client, in models.Inbound) {
	h, ok := g.handlers[in.Type]
	if !ok {
		c.sendError(in.RequestID, apperror.Newf(apperror.InvalidArgument, "unknown event type %q", in.Type))
		return
	}
	h(c, in)
}

func (g *Gateway) handleJoin(c *Client, in models.Inbound) {
	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		c.sendError(in.RequestID, apperror.New(apperror.InvalidArgument, "threadId is required"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	// membership can change after connect, so it is checked on every join
	ok, err := g.threads.IsParticipant(ctx, threadID, c.userID)
	if err != nil {
		c.sendError(in.RequestID, err)
		return
	}
	if !ok {
		c.sendError(in.RequestID, apperror.New(apperror.Forbidden, "not a participant of this thread"))
		return
	}

	g.dispatcher.Join(c, threadID)
	c.sendEvent(models.Outbound{Type: models.EventJoined, RequestID: in.RequestID, ThreadID: threadID})
}

func (g *Gateway) handleLeave(c *Client, in models.Inbound) {
	threadID := strings.TrimSpace(in.ThreadID)
	g.dispatcher.Leave(c, threadID)
	c.sendEvent(models.Outbound{Type: models.EventLeft, RequestID: in.RequestID, ThreadID: threadID})
}

func (g *Gateway) handleSend(c *Client, in models.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	// Append broadcasts message:new to the room, this client included.
	msg, err := g.messages.Append(ctx, strings.TrimSpace(in.ThreadID), c.userID, in.Content)
	if err != nil {
		c.sendError(in.RequestID, err)
		return
	}
	c.sendEvent(models.Outbound{Type: models.EventMessageSent, RequestID: in.RequestID, ThreadID: msg.ThreadID, Message: &msg})
}

func (g *Gateway) handlePing(c *Client, in models.Inbound) {
	c.sendEvent(models.Outbound{Type: models.EventPong, RequestID: in.RequestID})
}

// Client is one websocket connection.
type Client struct {
	id      string
	userID  string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	gw      *Gateway
}

func newClient(userID string, conn *websocket.Conn, g *Gateway) *Client {
	return &Client{
		id:      uuid.NewString(),
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, g.realtime.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(g.realtime.EventsPerSecond), g.realtime.EventBurst),
		gw:      g,
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send enqueues payload without blocking. A client whose buffer is full is
// closed and has to catch up from history after reconnecting.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.closeWith(websocket.ClosePolicyViolation, "send buffer full")
		return errors.New("send buffer full")
	}
}

func (c *Client) Close() {
	c.closeWith(websocket.CloseGoingAway, "server shutdown")
}

// closeWith marks the client closed right away. The close frame is written
// in the background: Send runs under room and thread locks, and WriteControl
// can wait up to writeWait behind a stalled writePump.
func (c *Client) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		go func() {
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
			_ = c.conn.Close()
		}()
	})
}

func (c *Client) sendEvent(out models.Outbound) {
	payload, err := json.Marshal(out)
	if err != nil {
		c.gw.log.Error("failed to encode event", zap.String("type", out.Type), zap.Error(err))
		return
	}
	_ = c.Send(payload)
}

func (c *Client) sendError(requestID string, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.Internal || kind == apperror.Unavailable {
		c.gw.log.Error("realtime request failed", zap.String("session_id", c.id), zap.Error(err))
	}
	c.sendEvent(models.Outbound{
		Type:      models.EventError,
		RequestID: requestID,
		Kind:      string(kind),
		Error:     apperror.MessageOf(err),
	})
}

// readPump handles inbound frames one at a time, which keeps each
// connection's requests in order. Every exit path disconnects the session.
func (c *Client) readPump() {
	defer func() {
		c.gw.dispatcher.Disconnect(c)
		c.closeWith(websocket.CloseNormalClosure, "")
		c.gw.log.Info("session disconnected", zap.String("user_id", c.userID), zap.String("session_id", c.id))
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.log.Debug("unexpected close", zap.String("session_id", c.id), zap.Error(err))
			}
			return
		}

		var in models.Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			c.sendError("", apperror.New(apperror.InvalidArgument, "malformed event"))
			continue
		}
		if !c.limiter.Allow() {
			c.sendError(in.RequestID, apperror.New(apperror.InvalidArgument, "rate limited"))
			continue
		}
		c.gw.dispatch(c, in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser requests from one of the configured origins.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
