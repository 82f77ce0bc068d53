package dispatch

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ambulance-dispatch/internal/models"
)

func TestSendWithoutSessionReturnsErrNoSession(t *testing.T) {
	reg := NewWSRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := reg.SendToDriver("ghost", models.NewNoDriversMessage("b1"))
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := reg.SendToRider("ghost", models.NewNoDriversMessage("b1")); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestDriverSessionRoundTrip(t *testing.T) {
	reg := NewWSRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		reg.AddDriver("d1", conn)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// the server side registers the session asynchronously
	deadline := time.Now().Add(time.Second)
	for {
		if err = reg.SendToDriver("d1", models.NewNoDriversMessage("b1")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never registered: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got models.Message
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Type != models.MsgNoDriversAvailable || got.BookingID != "b1" {
		t.Fatalf("unexpected message over the wire: %+v", got)
	}

	reg.RemoveDriver("d1")
	if err := reg.SendToDriver("d1", models.NewNoDriversMessage("b1")); !errors.Is(err, ErrNoSession) {
		t.Fatalf("removed session must be gone, got %v", err)
	}
}
