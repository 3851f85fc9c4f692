package adminhttp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/system"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// liveFeedHandler pushes a station-stats snapshot every tick to a
// connected admin dashboard; this is the only websocket usage in the
// repo and has no bearing on the raw-TCP wire protocol clients use
// (spec.md §6.1).
func liveFeedHandler(sys *system.System, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("livefeed upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			stations := sys.Stations()
			out := make([]stationSummary, 0, len(stations))
			for _, st := range stations {
				out = append(out, summarize(st))
			}
			if err := conn.WriteJSON(gin.H{"stations": out}); err != nil {
				return
			}
		}
	}
}
