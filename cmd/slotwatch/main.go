// Package main is a terminal stand-in for the storefront UI: it polls the
// catalog, feeds the reservation coordinator, and prints live slot states.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/class-reserve/client/internal/config"
	"github.com/class-reserve/client/internal/logging"
	"github.com/class-reserve/client/internal/reservation"
	"github.com/class-reserve/client/internal/stream"
)

func main() {
	cfg := config.Load()

	userID := flag.Int64("user", cfg.UserID, "Current user id")
	pollEvery := flag.Duration("poll", 30*time.Second, "Catalog refetch interval")
	flag.Parse()

	log := logging.New(cfg.Env)
	defer log.Sync()

	if *userID == 0 {
		log.Fatal("a user id is required (-user or RESERVE_USER_ID)")
	}

	cat := &catalogClient{baseURL: cfg.APIBaseURL, http: &http.Client{Timeout: 10 * time.Second}}

	token := cfg.AuthToken
	if token == "" {
		t, err := cat.fetchToken(context.Background(), *userID)
		if err != nil {
			log.Fatal("obtaining dev token", zap.Error(err))
		}
		token = t
	}
	cat.token = token

	sc := stream.NewClient(cfg.StreamURL, log)
	coord := reservation.NewCoordinator(sc, log)
	coord.OnChange(func(key reservation.SlotKey) {
		log.Info("slot changed", zap.Stringer("slot", key))
	})
	coord.Start(stream.Credentials{AuthToken: token, ChannelKey: cfg.ChannelKey}, *userID)
	defer coord.Shutdown()

	if !coord.LiveUpdates() {
		log.Warn("live updates unavailable, relying on catalog polls only")
	}

	refetch := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		snapshot, err := cat.fetchSessions(ctx)
		if err != nil {
			log.Warn("catalog refetch failed", zap.Error(err))
			return
		}

		// The refetch collaborator owns marker clearing: once fresh data
		// no longer reports a lock for a cancelled key, drop the marker.
		raws := make(map[reservation.SlotKey]reservation.RawSlotAttributes, len(snapshot))
		for _, s := range snapshot {
			raws[s.key()] = s.raw()
		}
		for _, key := range coord.CancelledKeys() {
			if raw, ok := raws[key]; ok && raw.PreReservedUserID == nil {
				coord.ClearCancellationMarker(key)
			}
		}

		printSnapshot(coord, snapshot)
	}

	refetch()
	ticker := time.NewTicker(*pollEvery)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			refetch()
		case <-quit:
			log.Info("stopping")
			return
		}
	}
}

func printSnapshot(coord *reservation.Coordinator, snapshot []sessionDTO) {
	fmt.Printf("%-4s %-12s %-12s %-11s %s\n", "SVC", "DATE", "TIME", "DAY", "STATE")
	for _, s := range snapshot {
		st := coord.SlotState(s.raw(), s.key())
		state := "open"
		switch {
		case st.IsReserve:
			state = "reserved"
		case st.SelfReserved:
			state = "locked by you"
		case st.IsPreReserved:
			state = "locked"
		}
		fmt.Printf("%-4d %-12s %-5s-%-6s %-11s %s\n",
			s.ServiceID, s.Date, s.FromTime, s.ToTime, s.DayLabel, state)
	}
}

// sessionDTO mirrors one catalog row from the backend.
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

func (s sessionDTO) key() reservation.SlotKey {
	return reservation.SlotKey{
		ServiceID: s.ServiceID,
		Date:      s.Date,
		FromTime:  s.FromTime,
		ToTime:    s.ToTime,
	}
}

func (s sessionDTO) raw() reservation.RawSlotAttributes {
	return reservation.RawSlotAttributes{
		IsReserve:         s.IsReserve,
		IsPreReserved:     s.IsPreReserved,
		SelfReserved:      s.SelfReserved,
		PreReservedUserID: s.PreReservedUserID,
	}
}

// catalogClient is the thin catalog/auth collaborator used by this demo.
type catalogClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *catalogClient) fetchToken(ctx context.Context, userID int64) (string, error) {
	body, _ := json.Marshal(map[string]int64{"userId": userID})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return out.Token, nil
}

func (c *catalogClient) fetchSessions(ctx context.Context) ([]sessionDTO, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sessions endpoint returned %d", resp.StatusCode)
	}
	var sessions []sessionDTO
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return sessions, nil
}
