package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"auctionlane/internal/services/engine"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second // must be < pongWait
)

// Server attaches websocket clients to auction rooms. The stream is
// one-directional: clients receive lifecycle and bid events, all commands go
// through the REST surface.
type Server struct {
	hub      *Hub
	eng      engine.IAuctionEngine
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, eng engine.IAuctionEngine) *Server {
	return &Server{
		hub: hub,
		eng: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle is the gin entry point. Clients pass ?auction_id=…; without it the
// connection follows the currently active auction.
func (s *Server) Handle(ginCtx *gin.Context) {
	auctionID := ginCtx.Query("auction_id")
	if auctionID == "" {
		current, err := s.eng.CurrentAuction(ginCtx.Request.Context())
		if err != nil || current == nil {
			ginCtx.JSON(http.StatusNotFound, gin.H{"error": "no active auction"})
			return
		}
		auctionID = current.AuctionID
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(512)

	conn := newStreamConn(rawConn)
	s.hub.Join(auctionID, conn)

	if err := s.pushSnapshot(ginCtx, auctionID, conn); err != nil {
		zap.L().Warn("ws.snapshot", zap.String("auction_id", auctionID), zap.Error(err))
	}

	go s.reader(auctionID, conn)
	go s.pinger(conn)
}

// pushSnapshot sends the auction's current state so a client does not have
// to wait for the next event to render something.
func (s *Server) pushSnapshot(ginCtx *gin.Context, auctionID string, conn *streamConn) error {
	auction, err := s.eng.GetAuction(ginCtx.Request.Context(), auctionID)
	if err != nil {
		return err
	}
	if auction == nil {
		return nil
	}
	return conn.writeJSON(gin.H{
		"event": "auctions/snapshot",
		"body":  auction,
	})
}

// reader drains inbound frames (keeping pong handling alive) until the
// client goes away, then detaches it from the room.
func (s *Server) reader(auctionID string, conn *streamConn) {
	defer s.hub.Leave(auctionID, conn)

	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) pinger(conn *streamConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.ping(); err != nil {
			conn.close()
			return
		}
	}
}
