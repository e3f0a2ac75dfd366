package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(nil, nil, zerolog.Nop())
	c := NewClient()

	hub.Register(c)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(c)
	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())

	_, open := <-c.Send
	assert.False(t, open)
}

func TestHubBroadcastRespectsFilter(t *testing.T) {
	hub := NewHub(nil, nil, zerolog.Nop())
	all := NewClient()
	cancels := NewClient(appointment.EventAppointmentCancelled)
	hub.Register(all)
	hub.Register(cancels)

	hub.Broadcast(Event{Type: appointment.EventAppointmentCreated, AppointmentID: "a1"})

	select {
	case msg := <-all.Send:
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, "a1", ev.AppointmentID)
	default:
		t.Fatal("unfiltered client should receive the event")
	}

	select {
	case <-cancels.Send:
		t.Fatal("filtered client should not receive created events")
	default:
	}
}

func TestHubDropsWhenClientBufferFull(t *testing.T) {
	hub := NewHub(nil, nil, zerolog.Nop())
	c := NewClient()
	hub.Register(c)

	for i := 0; i < sendBuffer+10; i++ {
		hub.Broadcast(Event{Type: "X"})
	}
	assert.Len(t, c.Send, sendBuffer)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://admin.clinic.test/"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://admin.clinic.test")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.test")
	assert.False(t, check(r))

	assert.True(t, originChecker([]string{"*"})(r))
	assert.True(t, originChecker(nil)(r))
}

func TestServiceEventsReachWebsocket(t *testing.T) {
	m := metrics.New()
	hub := NewHub(nil, m, zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?types=" + appointment.EventAppointmentCreated
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	repo := appointment.NewMemoryRepository()
	require.NoError(t, repo.CreateDoctor(ctx, &appointment.Doctor{ID: "doc", Email: "doc@x.com", Available: true, Fees: 300}))
	require.NoError(t, repo.CreateUser(ctx, &appointment.User{ID: "alice", Email: "alice@x.com"}))

	svc := appointment.NewService(repo, redisclient.NewLocalLocker(time.Second), NewBus(hub, m), zerolog.Nop())
	appt, err := svc.CreateAppointment(ctx, appointment.CreateRequest{
		DoctorID: "doc", UserID: "alice", SlotDate: "2025-01-10", SlotTime: "10:00",
	})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, appointment.EventAppointmentCreated, ev.Type)
	assert.Equal(t, appt.ID, ev.AppointmentID)
	assert.NotEmpty(t, ev.Data)
}
