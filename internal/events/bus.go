package events

import (
	"encoding/json"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/metrics"
)

// Bus receives persisted lifecycle events, counts them and fans them out to
// the live feed.
type Bus struct {
	hub     *Hub
	metrics *metrics.Metrics
}

func NewBus(hub *Hub, m *metrics.Metrics) *Bus {
	return &Bus{hub: hub, metrics: m}
}

func (b *Bus) Publish(ev appointment.EventLog) {
	b.metrics.LifecycleEvent(ev.EventType)
	if b.hub == nil {
		return
	}

	out := Event{
		Type:      ev.EventType,
		Timestamp: ev.CreatedAt,
	}
	if ev.AppointmentID != nil {
		out.AppointmentID = *ev.AppointmentID
	}
	if len(ev.Payload) > 0 && json.Valid(ev.Payload) {
		out.Data = json.RawMessage(ev.Payload)
	}
	b.hub.Broadcast(out)
}
