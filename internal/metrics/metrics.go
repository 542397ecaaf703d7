package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_ws_connections",
		Help: "Current number of active websocket connections",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_online_users",
		Help: "Users with at least one live connection",
	})
	RoomJoins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_room_joins_total",
		Help: "Room join attempts by outcome",
	}, []string{"outcome"})
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_messages_total",
		Help: "send_message requests by outcome",
	}, []string{"outcome"})
	PushTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_push_total",
		Help: "Offline push notifications by outcome",
	}, []string{"outcome"})
	OfflineQueueEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_offline_queue_evictions_total",
		Help: "Offline queue entries dropped because a user queue was full",
	})
	PresenceSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_presence_swept_total",
		Help: "Stale presence records forced offline by the maintenance sweep",
	})
	MaintenanceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_maintenance_failures_total",
		Help: "Failed maintenance tasks",
	}, []string{"task"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		OnlineUsers,
		RoomJoins,
		MessagesTotal,
		PushTotal,
		OfflineQueueEvictions,
		PresenceSwept,
		MaintenanceFailures,
	)
}
