// Package upstream talks to the services the coordinator depends on but does
// not own: the road router and the vehicle detector. Calls never retry.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	mmetrics "github.com/NagaPranathiRallabandi/marg-ai/internal/metrics"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/traffic"
)

var log = logrus.WithField("module", "upstream")

// ErrUpstream wraps every failure to reach or understand an external service.
var ErrUpstream = errors.New("upstream service failure")

// RouterClient asks an OSRM-compatible router for driving geometry.
type RouterClient struct {
	baseURL string
	http    *http.Client
	metrics *mmetrics.Collector
}

func NewRouterClient(baseURL string, timeout time.Duration, metrics *mmetrics.Collector) *RouterClient {
	return &RouterClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}, metrics: metrics}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry traffic.LineString `json:"geometry"`
	} `json:"routes"`
}

// Route returns the driving route between two [lat, lon] positions as a
// LineString in router order.
func (c *RouterClient) Route(ctx context.Context, from, to traffic.LatLon) (traffic.LineString, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, from.Lon(), from.Lat(), to.Lon(), to.Lat())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return traffic.LineString{}, fmt.Errorf("%w: build router request: %v", ErrUpstream, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	observe(c.metrics, "router", start)
	if err != nil {
		return traffic.LineString{}, fmt.Errorf("%w: router: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return traffic.LineString{}, fmt.Errorf("%w: router status %d: %s", ErrUpstream, resp.StatusCode, body)
	}

	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return traffic.LineString{}, fmt.Errorf("%w: decode router response: %v", ErrUpstream, err)
	}
	if len(out.Routes) == 0 {
		return traffic.LineString{}, fmt.Errorf("%w: router found no route (code %q)", ErrUpstream, out.Code)
	}
	geom := out.Routes[0].Geometry
	if geom.Type == "" {
		geom.Type = "LineString"
	}
	log.Debugf("router returned %d points", len(geom.Coordinates))
	return geom, nil
}

func observe(m *mmetrics.Collector, service string, start time.Time) {
	if m != nil {
		m.UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	}
}
