package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "classroom_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_broadcasts_total",
			Help: "Total number of room broadcasts by event name.",
		},
		[]string{"event"},
	)
	broadcastFanout = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classroom_broadcast_fanout_size",
			Help:    "Connections reached per broadcast.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)
	roomMembers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "classroom_room_members",
			Help: "Current member count per room.",
		},
		[]string{"room_id"},
	)
	roomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "classroom_rooms_active",
			Help: "Number of rooms currently tracked.",
		},
	)
	moderationActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_moderation_actions_total",
			Help: "Total number of moderation actions applied.",
		},
		[]string{"type"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "classroom_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		wsActiveConnections,
		wsEventsTotal,
		broadcastsTotal,
		broadcastFanout,
		roomMembers,
		roomsActive,
		moderationActionsTotal,
		amqpPublishErrorsTotal,
	)
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncBroadcast(event string, fanout int) {
	broadcastsTotal.WithLabelValues(event).Inc()
	broadcastFanout.Observe(float64(fanout))
}

func SetRoomMembers(roomID string, count int) {
	roomMembers.WithLabelValues(roomID).Set(float64(count))
}

func DropRoomMembers(roomID string) {
	roomMembers.DeleteLabelValues(roomID)
}

func SetRoomsActive(count int) {
	roomsActive.Set(float64(count))
}

func IncModerationAction(actionType string) {
	moderationActionsTotal.WithLabelValues(actionType).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
