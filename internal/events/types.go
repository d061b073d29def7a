// Package events defines the names and payloads of everything the service
// broadcasts to observers.
package events

import "github.com/NagaPranathiRallabandi/marg-ai/internal/traffic"

const (
	TripStarted    = "trip_started"
	UpdateLocation = "update_location"
	TripEnded      = "trip_ended"
	SignalCleared  = "signal_cleared"
	EmergencyAlert = "emergency_alert"
)

type TripStartedPayload struct {
	TripID   string             `json:"tripId"`
	Route    traffic.LineString `json:"route"`
	Position traffic.LatLon     `json:"position"`
}

type UpdateLocationPayload struct {
	Position traffic.LatLon `json:"position"`
	Step     int            `json:"step"`
}

type TripEndedPayload struct{}

type SignalClearedPayload struct {
	SignalID  int64          `json:"signalId"`
	NewStatus traffic.Status `json:"newStatus"`
}

type EmergencyAlertPayload struct {
	SignalID int64  `json:"signalId"`
	ETA      string `json:"eta"`
}
