// Package metrics implements the core.Observer interface on top of
// prometheus collectors. Everything here must stay cheap: the
// counters are bumped under room locks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/thabo-nyembe/collabsync/domain"
)

type Observer struct {
	rooms      prometheus.Gauge
	members    prometheus.Gauge
	messages   prometheus.Counter
	broadcasts *prometheus.CounterVec
	dropped    *prometheus.CounterVec
}

func NewObserver() *Observer {
	return &Observer{
		rooms: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collabsync_rooms",
			Help: "Number of live rooms.",
		}),
		members: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collabsync_members",
			Help: "Room memberships across all rooms.",
		}),
		messages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collabsync_messages_total",
			Help: "Chat messages appended to room logs.",
		}),
		broadcasts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collabsync_broadcasts_total",
			Help: "Frames fanned out to room members, by event type.",
		}, []string{"event"}),
		dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collabsync_frames_dropped_total",
			Help: "Frames dropped on full send buffers, by event type.",
		}, []string{"event"}),
	}
}

func (o *Observer) BroadcastSent(event string, sent, dropped int) {
	if sent > 0 {
		o.broadcasts.WithLabelValues(event).Add(float64(sent))
	}
	if dropped > 0 {
		o.dropped.WithLabelValues(event).Add(float64(dropped))
	}
}

func (o *Observer) RoomOpened(domain.Room)    { o.rooms.Inc() }
func (o *Observer) RoomClosed(domain.Room)    { o.rooms.Dec() }
func (o *Observer) MemberJoined(domain.Room)  { o.members.Inc() }
func (o *Observer) MemberLeft(domain.Room)    { o.members.Dec() }
func (o *Observer) MessageLogged(domain.Room) { o.messages.Inc() }
