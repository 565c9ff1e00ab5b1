package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const streamWriteTimeout = 5 * time.Second

// StatusStream upgrades to a websocket and pushes a sync status snapshot
// on connect and after every change until either side goes away. Client
// messages are ignored.
func (h *Handler) StatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originHosts(h.originPatterns),
	})
	if err != nil {
		h.logger.Debug("status stream rejected", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	updates, unsubscribe := h.engine.Status().Subscribe()
	defer unsubscribe()

	h.logger.Debug("status stream opened", slog.String("remote", r.RemoteAddr))

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case snap := <-updates:
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, snap)
			cancel()

			if err != nil {
				h.logger.Debug("status stream closed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// originHosts turns CORS origins into the host patterns the websocket
// origin check matches against. No origins means any host.
func originHosts(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}

	hosts := make([]string, 0, len(origins))

	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}

		hosts = append(hosts, o)
	}

	return hosts
}
