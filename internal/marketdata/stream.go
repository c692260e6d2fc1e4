package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dstolz/tradesim/internal/domain"
)

// StreamTick is the wire shape of one quote on the websocket feed.
type StreamTick struct {
	Asset  string  `json:"asset"`
	TimeMS int64   `json:"time"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// Stream reads bid/ask ticks from a websocket feed and delivers them as
// domain ticks, feeding the same ledger-then-book path as a replay.
type Stream struct {
	url  string
	log  *slog.Logger
	conn *websocket.Conn
}

// DialStream connects to a tick feed.
func DialStream(ctx context.Context, url string, log *slog.Logger) (*Stream, error) {
	if log == nil {
		log = slog.Default()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Stream{url: url, log: log, conn: conn}, nil
}

// Subscribe asks the feed for quotes on the given assets.
func (s *Stream) Subscribe(assets []domain.Asset) error {
	sub := struct {
		Type   string   `json:"type"`
		Assets []string `json:"assets"`
	}{Type: "subscribe"}
	for _, a := range assets {
		sub.Assets = append(sub.Assets, a.String())
	}
	return s.conn.WriteJSON(sub)
}

// Run reads the feed until ctx is cancelled or the connection drops,
// sending each quote to out. Malformed messages are logged and skipped.
func (s *Stream) Run(ctx context.Context, out chan<- domain.Tick) error {
	defer s.conn.Close()

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		var msg StreamTick
		if err := s.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read %s: %w", s.url, err)
		}
		if msg.Asset == "" || msg.Ask <= 0 || msg.Bid <= 0 || msg.Bid > msg.Ask {
			s.log.Warn("skipping malformed quote",
				slog.String("asset", msg.Asset),
				slog.Float64("bid", msg.Bid),
				slog.Float64("ask", msg.Ask))
			continue
		}

		tick := domain.NewBidAskTick(domain.Asset(msg.Asset), time.UnixMilli(msg.TimeMS).UTC(), msg.Bid, msg.Ask)
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close tears the connection down.
func (s *Stream) Close() error {
	return s.conn.Close()
}
