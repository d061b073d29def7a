// Package api exposes the coordinator over HTTP: commands as JSON endpoints and
// the observer feed as a server-sent event stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/NagaPranathiRallabandi/marg-ai/internal/corridor"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/detect"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/hub"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/sim"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/traffic"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/upstream"
)

var log = logrus.WithField("module", "api")

type RouteProvider interface {
	Route(ctx context.Context, from, to traffic.LatLon) (traffic.LineString, error)
}

type VehicleDetector interface {
	Detect(ctx context.Context, img upstream.Image) (upstream.DetectionResult, error)
}

type Deps struct {
	Hub       *hub.Hub
	Trips     *sim.Manager
	Corridor  *corridor.Sequencer
	Debouncer *detect.Debouncer
	Signals   *traffic.Registry
	Router    RouteProvider
	Detector  VehicleDetector

	DemoCorridor    []int64
	VehicleSpeedKmh float64
	JWTSecret       string
	KeepAlive       time.Duration
}

type Server struct {
	Deps
}

func NewServer(d Deps) *Server {
	if d.KeepAlive <= 0 {
		d.KeepAlive = 15 * time.Second
	}
	if d.Signals == nil {
		d.Signals = traffic.NewRegistry(nil)
	}
	return &Server{Deps: d}
}

// Handler builds the gin engine with every route mounted.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Logger(), CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/signals", s.listSignals)
		api.GET("/trip", s.getTrip)
		api.GET("/events", s.streamEvents)
		api.POST("/calculate-route", s.calculateRoute)

		cmd := api.Group("", RequireOperator(s.JWTSecret))
		cmd.POST("/trip/start", s.startTrip)
		cmd.POST("/trip/cancel", s.cancelTrip)
		cmd.POST("/signals/:id/clear", s.clearSignal)
		cmd.POST("/simulate-green-corridor", s.runCorridor)
		cmd.POST("/detect-vehicle/:signalId", s.detectVehicle)
	}
	return r
}
