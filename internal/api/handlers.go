package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/NagaPranathiRallabandi/marg-ai/internal/corridor"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/detect"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/events"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/sim"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/traffic"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/upstream"
)

// maxImageBytes bounds the uploaded camera frame.
const maxImageBytes = 10 << 20

func (s *Server) listSignals(c *gin.Context) {
	c.JSON(http.StatusOK, s.Signals.List())
}

func (s *Server) getTrip(c *gin.Context) {
	snap, ok := s.Trips.Snapshot()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active trip"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

type routeRequest struct {
	Start *traffic.LatLon `json:"start" binding:"required"`
	End   *traffic.LatLon `json:"end" binding:"required"`
}

func (s *Server) calculateRoute(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end are required as [lat, lon]"})
		return
	}
	if s.Router == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "routing is not configured"})
		return
	}
	geom, err := s.Router.Route(c.Request.Context(), *req.Start, *req.End)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to calculate route"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"route": geom})
}

type startTripRequest struct {
	Route traffic.LineString `json:"route"`
}

func (s *Server) startTrip(c *gin.Context) {
	var req startTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	snap, err := s.Trips.Start(req.Route.Coordinates)
	if errors.Is(err, sim.ErrInvalidRoute) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start trip"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip": snap})
}

func (s *Server) cancelTrip(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": s.Trips.Cancel()})
}

func (s *Server) clearSignal(c *gin.Context) {
	id, ok := signalID(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Trips.ClearSignal(id, "manual"))
}

type corridorRequest struct {
	SignalIDs []int64 `json:"signalIds"`
}

func (s *Server) runCorridor(c *gin.Context) {
	var req corridorRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ids := req.SignalIDs
	if len(ids) == 0 {
		ids = s.DemoCorridor
	}
	run, err := s.Corridor.Start(ids)
	if errors.Is(err, corridor.ErrEmptyCorridor) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start corridor"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":   "green corridor simulation started",
		"runId":     run.ID,
		"signalIds": run.Signals,
	})
}

type detectResponse struct {
	Status          string               `json:"status"`
	VehicleDetected bool                 `json:"vehicle_detected"`
	Detections      []upstream.Detection `json:"detections"`
	ETA             string               `json:"eta,omitempty"`
}

// detectVehicle forwards a camera frame to the detector and feeds positive
// results to the debouncer. A confirmed emergency vehicle raises an alert and
// clears the signal.
func (s *Server) detectVehicle(c *gin.Context) {
	id, ok := signalID(c, "signalId")
	if !ok {
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image provided"})
		return
	}
	if fh.Size > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
		return
	}
	if s.Detector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "detection is not configured"})
		return
	}

	res, err := s.Detector.Detect(c.Request.Context(), upstream.Image{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to communicate with detection service"})
		return
	}

	out := detectResponse{Status: "no_vehicle", VehicleDetected: res.VehicleDetected, Detections: res.Detections}
	if res.VehicleDetected {
		r := s.Debouncer.Record(id)
		out.Status = r.String()
		if r == detect.Confirmed {
			out.ETA = s.eta(id)
			s.Hub.Publish(events.EmergencyAlert, events.EmergencyAlertPayload{SignalID: id, ETA: out.ETA})
			s.Trips.ClearSignal(id, "detection")
			log.Infof("emergency vehicle confirmed at signal %d (eta %s)", id, out.ETA)
		}
	}
	c.JSON(http.StatusOK, out)
}

// eta estimates how long the simulated vehicle needs to reach the signal.
func (s *Server) eta(id int64) string {
	sig, ok := s.Signals.Get(id)
	if !ok {
		return "unknown"
	}
	snap, running := s.Trips.Snapshot()
	if !running {
		return "unknown"
	}
	d := traffic.DistanceMeters(snap.Position, traffic.LatLon{sig.Latitude, sig.Longitude})
	return traffic.FormatETA(traffic.TravelTime(d, s.VehicleSpeedKmh))
}

func signalID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal id"})
		return 0, false
	}
	return id, true
}
