package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/jonocairns/tskr/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and streams the
// caller's household events until the connection closes.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		logger.Debug("websocket connected", "household_id", ac.HouseholdID, "user_id", ac.UserID)
		NewClient(hub, conn, ac.HouseholdID, ac.UserID).Run(r.Context())
		conn.Close(ws.StatusNormalClosure, "")
	}
}
