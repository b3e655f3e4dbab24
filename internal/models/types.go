package models

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status         string `json:"status"`
	Store          string `json:"store"`
	GRPCStatus     string `json:"grpc_status"`
	ActiveClients  int    `json:"active_clients"`
	ActiveSessions int    `json:"active_sessions"`
	UptimeSec      int64  `json:"system_uptime_sec"`
	Timestamp      string `json:"timestamp"`
	Version        string `json:"version,omitempty"`
}
