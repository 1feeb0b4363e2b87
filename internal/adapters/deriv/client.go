package deriv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultEndpoint = "wss://ws.derivws.com/websockets/v3"
	defaultAppID    = "1089"

	// El API permite ~30 req/s por conexión; nos quedamos muy por debajo.
	requestsPerSec = 5
	requestBurst   = 10

	maxConnectAttempts = 3
	baseRetryWait      = time.Second
	writeTimeout       = 10 * time.Second
	pingInterval       = 30 * time.Second
	streamBuffer       = 64
)

// ErrClosed is returned for requests on a closed connection.
var ErrClosed = errors.New("deriv: connection closed")

// Client es el cliente WebSocket de Deriv: un socket, respuestas enrutadas por
// req_id, rate limiting en las escrituras.
type Client struct {
	endpoint  string
	appID     string
	token     string
	retryWait time.Duration
	limiter   *rate.Limiter
	dialer    *websocket.Dialer

	writeMu sync.Mutex

	mu     sync.Mutex
	sess   *wsSession
	nextID int
	routes map[int]chan []byte

	loginID string
}

// wsSession es una conexión abierta; done se cierra una sola vez al terminar.
type wsSession struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (s *wsSession) shutdown() { s.once.Do(func() { close(s.done) }) }

// Option configures a Client.
type Option func(*Client)

// WithRetryWait overrides the base connect backoff.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// NewClient crea un Client. Si endpoint o appID están vacíos usa los de producción.
// token puede estar vacío para acceso solo lectura (ticks).
func NewClient(endpoint, appID, token string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if appID == "" {
		appID = defaultAppID
	}
	c := &Client{
		endpoint:  endpoint,
		appID:     appID,
		token:     token,
		retryWait: baseRetryWait,
		limiter:   rate.NewLimiter(requestsPerSec, requestBurst),
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		routes:    make(map[int]chan []byte),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect dials the API and authorizes when a token is set. It retries with
// exponential backoff; an invalid token is not retried.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("deriv.Connect: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("app_id", c.appID)
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt < maxConnectAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryWait
			slog.Info("deriv: retrying connect", "attempt", attempt+1, "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = c.dial(ctx, u.String())
		if lastErr == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && strings.Contains(strings.ToLower(apiErr.Code+apiErr.Message), "token") {
			return fmt.Errorf("deriv.Connect: %w", lastErr)
		}
		slog.Warn("deriv: connect attempt failed", "attempt", attempt+1, "err", lastErr)
	}
	return fmt.Errorf("deriv.Connect: failed after %d attempts: %w", maxConnectAttempts, lastErr)
}

func (c *Client) dial(ctx context.Context, rawURL string) error {
	conn, _, err := c.dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return err
	}

	sess := &wsSession{conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	go c.readLoop(sess)

	if c.token == "" {
		go c.keepAlive(sess.done)
		return nil
	}

	var auth authorizeResponse
	if err := c.call(ctx, func(id int) any { return authorizeRequest{Authorize: c.token, ReqID: id} }, &auth); err != nil {
		c.Close()
		return err
	}
	c.loginID = auth.Authorize.LoginID
	slog.Info("deriv: authorized", "account", c.loginID, "currency", auth.Authorize.Currency)
	go c.keepAlive(sess.done)
	return nil
}

// Close cierra la conexión. Las llamadas pendientes reciben ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	sess.shutdown()
	return sess.conn.Close()
}

// readLoop despacha cada mensaje al canal registrado para su req_id.
func (c *Client) readLoop(sess *wsSession) {
	defer sess.shutdown()
	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			select {
			case <-sess.done:
			default:
				slog.Warn("deriv: read failed, connection closed", "err", err)
			}
			return
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Debug("deriv: undecodable message", "err", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.routes[env.ReqID]
		c.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- raw:
		case <-sess.done:
			return
		}
	}
}

func (c *Client) keepAlive(done chan struct{}) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			var pong json.RawMessage
			if err := c.call(ctx, func(id int) any { return pingRequest{Ping: 1, ReqID: id} }, &pong); err != nil {
				slog.Debug("deriv: ping failed", "err", err)
			}
			cancel()
		}
	}
}

// register reserva un req_id y su canal de respuestas.
func (c *Client) register(buffer int) (int, chan []byte, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	ch := make(chan []byte, buffer)
	c.routes[c.nextID] = ch
	var done <-chan struct{}
	if c.sess != nil {
		done = c.sess.done
	}
	return c.nextID, ch, done
}

func (c *Client) unregister(id int) {
	c.mu.Lock()
	delete(c.routes, id)
	c.mu.Unlock()
}

// send escribe una request respetando el rate limiter.
func (c *Client) send(ctx context.Context, req any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return ErrClosed
	}
	select {
	case <-sess.done:
		return ErrClosed
	default:
	}
	sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sess.conn.WriteJSON(req)
}

// call envía una request y decodifica su única respuesta en out.
func (c *Client) call(ctx context.Context, build func(reqID int) any, out any) error {
	id, ch, done := c.register(1)
	defer c.unregister(id)

	if err := c.send(ctx, build(id)); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrClosed
	case raw := <-ch:
		return decodeResponse(raw, out)
	}
}

// stream envía una request de suscripción; cada mensaje con su req_id llega
// por el canal devuelto hasta llamar a cancel.
func (c *Client) stream(ctx context.Context, build func(reqID int) any) (<-chan []byte, <-chan struct{}, func(), error) {
	id, ch, done := c.register(streamBuffer)
	if err := c.send(ctx, build(id)); err != nil {
		c.unregister(id)
		return nil, nil, nil, err
	}
	return ch, done, func() { c.unregister(id) }, nil
}

// APIError es un error devuelto por el API.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deriv: %s: %s", e.Code, e.Message)
}

func decodeResponse(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Error != nil {
		return &APIError{Code: env.Error.Code, Message: env.Error.Message}
	}
	if err := decode(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", env.MsgType, err)
	}
	return nil
}
