package handlers

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/linkstash/linkstash/internal/httpserver/deps"
	"github.com/linkstash/linkstash/internal/httpserver/mw"
	"github.com/linkstash/linkstash/internal/logger"
)

const streamWriteTimeout = 10 * time.Second

// Stream upgrades to a websocket and forwards the owner's change events as
// JSON messages. The connection is write-only from the server's side; a
// client that falls behind gets events dropped by the hub and recovers with
// a full pull.
func Stream(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := mw.Owner(r.Context())

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			d.Logger.Warn("websocket accept failed", logger.Error(err))
			return
		}
		defer conn.Close(websocket.StatusInternalError, "stream closed")

		events, cancel := d.Hub.Subscribe(owner)
		defer cancel()

		d.Logger.Debug("stream subscriber connected",
			logger.String("owner", owner))

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "server shutting down")
				return
			case ev, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "stream closed")
					return
				}
				writeCtx, cancelWrite := context.WithTimeout(ctx, streamWriteTimeout)
				err := wsjson.Write(writeCtx, conn, ev)
				cancelWrite()
				if err != nil {
					d.Logger.Debug("stream subscriber gone",
						logger.String("owner", owner),
						logger.Error(err))
					return
				}
			}
		}
	}
}
