package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"coin_swap/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	binanceWSURL            = "wss://stream.binance.com:9443/ws"
	binanceHandshakeTimeout = 10 * time.Second
	binanceReadTimeout      = 180 * time.Second
	binanceWriteTimeout     = 5 * time.Second
)

// binanceSubscribeRequest is the live-subscribe frame sent once per connection
type binanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// binanceTradeEvent represents a Binance <symbol>@trade payload.
// Both cases of "e"/"E" and "t"/"T" are declared so case-insensitive matching cannot cross them.
type binanceTradeEvent struct {
	EventType string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	TradeID   int64           `json:"t"`
	Price     decimal.Decimal `json:"p"`
	TradeTime int64           `json:"T"`
}

// BinanceDialer opens trade-stream connections against the Binance raw websocket endpoint
type BinanceDialer struct {
	url              string
	handshakeTimeout time.Duration
	readTimeout      time.Duration
}

// NewBinanceDialer creates a dialer; zero timeouts and an empty url fall back to the defaults.
func NewBinanceDialer(url string, handshakeTimeout, readTimeout time.Duration) *BinanceDialer {
	if url == "" {
		url = binanceWSURL
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = binanceHandshakeTimeout
	}
	if readTimeout <= 0 {
		readTimeout = binanceReadTimeout
	}
	return &BinanceDialer{
		url:              url,
		handshakeTimeout: handshakeTimeout,
		readTimeout:      readTimeout,
	}
}

// Dial establishes one websocket connection
func (d *BinanceDialer) Dial(ctx context.Context) (domain.StreamConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
	}

	header := make(http.Header)
	header.Add("User-Agent", DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, d.url, header)
	if err != nil {
		return nil, domain.NewNetworkError("dial", err)
	}

	bc := &binanceConn{conn: conn, readTimeout: d.readTimeout}

	// Binance pings every few minutes; answering and pushing the deadline keeps the stream alive
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(bc.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(binanceWriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	return bc, nil
}

// binanceConn wraps one gorilla connection
type binanceConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	writeMu     sync.Mutex
	closeOnce   sync.Once
}

// Subscribe sends {"method":"SUBSCRIBE","params":[...],"id":id}
func (c *binanceConn) Subscribe(channels []string, id int) error {
	msg, err := json.Marshal(binanceSubscribeRequest{
		Method: "SUBSCRIBE",
		Params: channels,
		ID:     id,
	})
	if err != nil {
		return err
	}
	if err := c.threadSafeWrite(websocket.TextMessage, msg); err != nil {
		return domain.NewNetworkError("subscribe", err)
	}
	return nil
}

// threadSafeWrite sends a message to the WebSocket connection in a thread-safe manner
func (c *binanceConn) threadSafeWrite(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(binanceWriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// ReadTrade blocks for the next frame. Subscription acks and other non-trade frames return ok=false.
func (c *binanceConn) ReadTrade() (domain.Trade, bool, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		return domain.Trade{}, false, domain.NewNetworkError("read", err)
	}

	trade, ok := parseTradeFrame(message)
	return trade, ok, nil
}

// parseTradeFrame decodes a trade payload; malformed or unrelated frames report ok=false.
func parseTradeFrame(message []byte) (domain.Trade, bool) {
	var ev binanceTradeEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return domain.Trade{}, false
	}
	if ev.EventType != "trade" || ev.Symbol == "" {
		return domain.Trade{}, false
	}
	return domain.Trade{
		Symbol:  ev.Symbol,
		Price:   ev.Price,
		TradeID: ev.TradeID,
		TimeMs:  ev.TradeTime,
	}, true
}

// Close sends a close frame and releases the connection. Safe to call more than once.
func (c *binanceConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		if cerr := c.conn.Close(); cerr != nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	})
	return err
}
