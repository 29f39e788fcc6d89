// Package okx implements the live exchange client over the OKX v5 websocket
// API: bbo-tbt and trades on the public endpoint, the orders channel and
// order operations on the authenticated private endpoint.
package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"main/internal/market"
)

const (
	PublicURL      = "wss://ws.okx.com:8443/ws/v5/public"
	PrivateURL     = "wss://ws.okx.com:8443/ws/v5/private"
	PublicSimuURL  = "wss://wspap.okx.com:8443/ws/v5/public"
	PrivateSimuURL = "wss://wspap.okx.com:8443/ws/v5/private"
)

// Config holds endpoint and credential settings. Simulated switches to the
// demo trading environment.
type Config struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	Simulated  bool
	// PublicURL and PrivateURL override the environment defaults, mainly
	// for tests.
	PublicURL  string
	PrivateURL string
	// ReadTimeout bounds socket silence; pings go out at half of it.
	// 25 seconds unless set, matching the venue's 30 second idle cutoff.
	ReadTimeout time.Duration
}

type readMsg struct {
	ev  market.Event
	err error
}

// Client is one websocket session pair implementing live.ExchangeClient.
// Connect discards any previous session and starts a fresh one.
type Client struct {
	cfg Config

	mu        sync.Mutex
	pub       *websocket.Conn
	priv      *websocket.Conn
	pubWrite  sync.Mutex
	privWrite sync.Mutex
	inbox     chan readMsg
	// orderInst maps client order ids to instruments; cancels and amends
	// need the instrument on the wire but not in the request type.
	orderInst map[uint64]string
}

// New builds a client. No connection is made until Connect.
func New(cfg Config) *Client {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 25 * time.Second
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = PublicURL
		if cfg.Simulated {
			cfg.PublicURL = PublicSimuURL
		}
	}
	if cfg.PrivateURL == "" {
		cfg.PrivateURL = PrivateURL
		if cfg.Simulated {
			cfg.PrivateURL = PrivateSimuURL
		}
	}
	return &Client{
		cfg:       cfg,
		orderInst: make(map[uint64]string),
	}
}

// Connect dials both endpoints, authenticates the private one, and starts
// the session readers.
func (c *Client) Connect(ctx context.Context) error {
	c.closeConns()

	pub, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.PublicURL, nil)
	if err != nil {
		return errors.Wrap(err, "dial public")
	}
	priv, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.PrivateURL, nil)
	if err != nil {
		pub.Close()
		return errors.Wrap(err, "dial private")
	}
	if err := c.login(priv); err != nil {
		pub.Close()
		priv.Close()
		return err
	}

	inbox := make(chan readMsg, 256)
	dec := newDecoder()

	c.mu.Lock()
	c.pub = pub
	c.priv = priv
	c.inbox = inbox
	c.mu.Unlock()

	go c.readSocket(pub, dec, inbox, &c.pubWrite)
	go c.readSocket(priv, dec, inbox, &c.privWrite)
	return nil
}

// Subscribe requests bbo-tbt and trades for each instrument on the public
// socket and the orders channel on the private one.
func (c *Client) Subscribe(_ context.Context, instruments []market.Instrument) error {
	type subArg struct {
		Channel  string `json:"channel"`
		InstType string `json:"instType,omitempty"`
		InstID   string `json:"instId"`
	}
	type subRequest struct {
		Op   string   `json:"op"`
		Args []subArg `json:"args"`
	}

	pubArgs := make([]subArg, 0, len(instruments)*2)
	privArgs := make([]subArg, 0, len(instruments))
	for _, inst := range instruments {
		pubArgs = append(pubArgs,
			subArg{Channel: channelBboTbt, InstID: string(inst)},
			subArg{Channel: channelTrades, InstID: string(inst)},
		)
		privArgs = append(privArgs, subArg{Channel: channelOrders, InstType: "SWAP", InstID: string(inst)})
	}

	if err := c.writePublic(subRequest{Op: "subscribe", Args: pubArgs}); err != nil {
		return errors.Wrap(err, "subscribe public")
	}
	if err := c.writePrivate(subRequest{Op: "subscribe", Args: privArgs}); err != nil {
		return errors.Wrap(err, "subscribe private")
	}
	return nil
}

// ReadEvent returns the next translated exchange message from either socket.
func (c *Client) ReadEvent(ctx context.Context) (market.Event, error) {
	c.mu.Lock()
	inbox := c.inbox
	c.mu.Unlock()
	if inbox == nil {
		return nil, errors.New("not connected")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-inbox:
		return msg.ev, msg.err
	}
}

type orderArg struct {
	Side    string `json:"side"`
	InstID  string `json:"instId"`
	ClOrdID string `json:"clOrdId"`
	TdMode  string `json:"tdMode"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	Px      string `json:"px,omitempty"`
}

type amendArg struct {
	InstID  string `json:"instId"`
	ClOrdID string `json:"clOrdId"`
	NewSz   string `json:"newSz,omitempty"`
	NewPx   string `json:"newPx,omitempty"`
}

type cancelArg struct {
	InstID  string `json:"instId"`
	ClOrdID string `json:"clOrdId"`
}

type opRequest[A any] struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Args [1]A   `json:"args"`
}

// Place submits an order keyed by the numeric client order id, which makes
// resends after a reconnect idempotent on the venue side.
func (c *Client) Place(_ context.Context, p market.Place) error {
	ordType := "limit"
	px := formatF(p.Price)
	if p.Type == market.OrderTypeMarket {
		ordType = "market"
		px = ""
	}
	req := opRequest[orderArg]{
		ID: requestID(),
		Op: "order",
		Args: [1]orderArg{{
			Side:    sideStr(p.Side),
			InstID:  string(p.Instrument),
			ClOrdID: strconv.FormatUint(p.OrderID, 10),
			TdMode:  "cross",
			OrdType: ordType,
			Sz:      formatF(p.Size),
			Px:      px,
		}},
	}

	c.mu.Lock()
	c.orderInst[p.OrderID] = string(p.Instrument)
	c.mu.Unlock()

	return c.writePrivate(req)
}

// Cancel removes an order previously placed through this client.
func (c *Client) Cancel(_ context.Context, r market.Cancel) error {
	inst, err := c.instrumentFor(r.OrderID)
	if err != nil {
		return err
	}
	req := opRequest[cancelArg]{
		ID: requestID(),
		Op: "cancel-order",
		Args: [1]cancelArg{{
			InstID:  inst,
			ClOrdID: strconv.FormatUint(r.OrderID, 10),
		}},
	}
	return c.writePrivate(req)
}

// Modify amends price and size of an order placed through this client.
func (c *Client) Modify(_ context.Context, m market.Modify) error {
	inst, err := c.instrumentFor(m.OrderID)
	if err != nil {
		return err
	}
	req := opRequest[amendArg]{
		ID: requestID(),
		Op: "amend-order",
		Args: [1]amendArg{{
			InstID:  inst,
			ClOrdID: strconv.FormatUint(m.OrderID, 10),
			NewSz:   formatF(m.NewSize),
			NewPx:   formatF(m.NewPrice),
		}},
	}
	return c.writePrivate(req)
}

// Close tears the session down.
func (c *Client) Close() error {
	c.closeConns()
	return nil
}

func (c *Client) closeConns() {
	c.mu.Lock()
	pub, priv := c.pub, c.priv
	c.pub, c.priv = nil, nil
	c.mu.Unlock()
	if pub != nil {
		pub.Close()
	}
	if priv != nil {
		priv.Close()
	}
}

// login authenticates the private socket: HMAC-SHA256 of
// timestamp+"GET"+"/users/self/verify" under the API secret, base64 encoded.
func (c *Client) login(conn *websocket.Conn) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(ts + "GET" + "/users/self/verify"))
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	type loginArg struct {
		APIKey     string `json:"apiKey"`
		Passphrase string `json:"passphrase"`
		Timestamp  string `json:"timestamp"`
		Sign       string `json:"sign"`
	}
	req := map[string]any{
		"op":   "login",
		"args": []loginArg{{APIKey: c.cfg.APIKey, Passphrase: c.cfg.Passphrase, Timestamp: ts, Sign: sign}},
	}
	if err := conn.WriteJSON(req); err != nil {
		return errors.Wrap(err, "send login")
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var resp pushFrame
	if err := conn.ReadJSON(&resp); err != nil {
		return errors.Wrap(err, "read login response")
	}
	if resp.Event != "login" || resp.Code != "0" {
		return errors.Errorf("login rejected %s: %s", resp.Code, resp.Msg)
	}
	return nil
}

// readSocket pumps one socket into the session inbox until it fails. Pings
// keep the venue from cutting the connection idle.
func (c *Client) readSocket(conn *websocket.Conn, dec *decoder, inbox chan readMsg, write *sync.Mutex) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(c.cfg.ReadTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				write.Lock()
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				write.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Non-blocking: the session may already be abandoned.
			select {
			case inbox <- readMsg{err: errors.Wrap(err, "read socket")}:
			default:
			}
			return
		}
		ev, err := dec.decode(data)
		if err != nil {
			select {
			case inbox <- readMsg{err: err}:
			default:
			}
			return
		}
		if ev == nil {
			continue
		}
		inbox <- readMsg{ev: ev}
	}
}

func (c *Client) instrumentFor(orderID uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.orderInst[orderID]
	if !ok {
		return "", errors.Errorf("unknown client order id %d", orderID)
	}
	return inst, nil
}

func (c *Client) writePublic(v any) error {
	c.mu.Lock()
	conn := c.pub
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	c.pubWrite.Lock()
	defer c.pubWrite.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(v)
}

func (c *Client) writePrivate(v any) error {
	c.mu.Lock()
	conn := c.priv
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	c.privWrite.Lock()
	defer c.privWrite.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(v)
}

// requestID generates the alphanumeric id the venue requires on order
// operations.
func requestID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func sideStr(s market.Side) string {
	if s == market.SideSell {
		return "sell"
	}
	return "buy"
}

func formatF(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
