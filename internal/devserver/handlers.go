package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/class-reserve/client/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local development server, any origin is fine.
		return true
	},
}

// Server bundles the devserver's dependencies for the HTTP handlers.
type Server struct {
	log  *zap.Logger
	repo *SlotRepository
	hub  *Hub
	auth *TokenIssuer
}

// NewServer creates the handler bundle.
func NewServer(log *zap.Logger, repo *SlotRepository, hub *Hub, auth *TokenIssuer) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log, repo: repo, hub: hub, auth: auth}
}

// sessionDTO is one catalog row as the storefront client consumes it.
// selfReserved is computed per viewer.
type sessionDTO struct {
	ServiceID         int64  `json:"serviceId"`
	Date              string `json:"date"`
	FromTime          string `json:"fromTime"`
	ToTime            string `json:"toTime"`
	DayLabel          string `json:"dayLabel"`
	IsReserve         bool   `json:"isReserve"`
	IsPreReserved     bool   `json:"isPreReserved"`
	SelfReserved      bool   `json:"selfReserved"`
	PreReservedUserID *int64 `json:"preReservedUserId,omitempty"`
}

// slotRequest identifies the slot a reservation call targets.
type slotRequest struct {
	ServiceID int64  `json:"serviceId"`
	Date      string `json:"date"`
	FromTime  string `json:"fromTime"`
	ToTime    string `json:"toTime"`
}

func (r slotRequest) valid() bool {
	return r.ServiceID != 0 && r.Date != "" && r.FromTime != "" && r.ToTime != ""
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// HandleToken issues a development bearer token for the requested user.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	token, err := s.auth.Issue(req.UserID)
	if err != nil {
		s.log.Error("issuing token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// HandleSessions returns the catalog snapshot for the authenticated viewer.
func (s *Server) HandleSessions(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	slots, err := s.repo.List(r.Context())
	if err != nil {
		s.log.Error("listing slots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}

	sessions := make([]sessionDTO, 0, len(slots))
	for _, sl := range slots {
		dto := sessionDTO{
			ServiceID:         sl.ServiceID,
			Date:              sl.Date,
			FromTime:          sl.FromTime,
			ToTime:            sl.ToTime,
			DayLabel:          sl.DayLabel,
			IsReserve:         sl.IsReserve,
			IsPreReserved:     sl.PreReservedUserID != nil,
			PreReservedUserID: sl.PreReservedUserID,
		}
		if sl.PreReservedUserID != nil && *sl.PreReservedUserID == viewer {
			dto.SelfReserved = true
		}
		sessions = append(sessions, dto)
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandleLock places a pre-reservation and broadcasts the event.
func (s *Server) HandleLock(w http.ResponseWriter, r *http.Request) {
	s.mutateSlot(w, r, stream.StatusPreReserved, s.repo.Lock)
}

// HandleRelease drops the caller's pre-reservation and broadcasts a
// cancellation.
func (s *Server) HandleRelease(w http.ResponseWriter, r *http.Request) {
	s.mutateSlot(w, r, stream.StatusCancelled, s.repo.Release)
}

// HandleConfirm finalizes the caller's pre-reservation.
func (s *Server) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	s.mutateSlot(w, r, stream.StatusReserved, s.repo.Confirm)
}

// slotMutation is the shape shared by repository Lock, Release and Confirm.
type slotMutation func(ctx context.Context, serviceID int64, date, from, to string, userID int64) (int64, error)

func (s *Server) mutateSlot(w http.ResponseWriter, r *http.Request, status stream.EventStatus, op slotMutation) {
	viewer, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		writeError(w, http.StatusBadRequest, "slot identity required")
		return
	}

	seq, err := op(r.Context(), req.ServiceID, req.Date, req.FromTime, req.ToTime, viewer)
	if errors.Is(err, ErrSlotUnavailable) {
		writeError(w, http.StatusConflict, "slot unavailable")
		return
	}
	if err != nil {
		s.log.Error("slot mutation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "mutation failed")
		return
	}

	ev := stream.LiveEvent{
		ServiceID: req.ServiceID,
		Date:      req.Date,
		FromTime:  req.FromTime,
		ToTime:    req.ToTime,
		Status:    status,
		Seq:       seq,
	}
	if status != stream.StatusCancelled {
		uid := viewer
		ev.ByUserID = &uid
	}
	s.hub.BroadcastEvent(ev)

	writeJSON(w, http.StatusOK, map[string]any{"seq": seq})
}

// HandleWS verifies the bearer token and upgrades to the event channel.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	if _, err := s.auth.Verify(token); err != nil {
		s.log.Warn("websocket auth failed", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newHubClient()
	s.hub.register <- client

	go s.writePump(conn, client)
	go s.readPump(conn, client)
}

// writePump pumps frames from the hub to the connection.
func (s *Server) writePump(conn *websocket.Conn, client *hubClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection until it closes. The event channel is
// push-only; inbound frames are ignored.
func (s *Server) readPump(conn *websocket.Conn, client *hubClient) {
	defer func() {
		s.hub.unregister <- client
		conn.Close()
	}()

	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (int64, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return 0, false
	}
	userID, err := s.auth.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return 0, false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
