package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dstolz/tradesim/internal/domain"
)

func TestStream_DeliversTicksAndSkipsMalformed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Echo back a subscription ack-less feed: one bad quote, two good.
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		quotes := []StreamTick{
			{Asset: "BTC", TimeMS: 1_700_000_000_000, Bid: 110, Ask: 100}, // crossed, must be skipped
			{Asset: "BTC", TimeMS: 1_700_000_000_000, Bid: 100, Ask: 101},
			{Asset: "ETH", TimeMS: 1_700_000_001_000, Bid: 10, Ask: 10.1},
		}
		for _, q := range quotes {
			if err := conn.WriteJSON(q); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	stream, err := DialStream(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := stream.Subscribe([]domain.Asset{"BTC", "ETH"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	out := make(chan domain.Tick, 8)
	go stream.Run(ctx, out)

	var got []domain.Tick
	for len(got) < 2 {
		select {
		case tick := <-out:
			got = append(got, tick)
		case <-ctx.Done():
			t.Fatalf("timed out with %d ticks", len(got))
		}
	}

	if got[0].Asset != "BTC" || got[0].Kind != domain.TickBidAsk || got[0].Bid != 100 || got[0].Ask != 101 {
		t.Errorf("unexpected first tick %+v", got[0])
	}
	if !got[0].Time.Equal(time.UnixMilli(1_700_000_000_000).UTC()) {
		t.Errorf("time not converted from unix ms, got %v", got[0].Time)
	}
	if got[1].Asset != "ETH" {
		t.Errorf("unexpected second tick %+v", got[1])
	}
}
