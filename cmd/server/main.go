package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/NagaPranathiRallabandi/marg-ai/internal/api"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/config"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/corridor"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/db"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/detect"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/hub"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/logging"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/metrics"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/publisher"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/sim"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/traffic"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/upstream"
)

var log = logrus.WithField("module", "main")

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if !logging.Setup(cfg.LogLevel, cfg.LogFormat) {
		log.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TickPeriod, cfg.ConfirmationWindow, cfg.CorridorStepDelay)
		msrv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(msrv)
	}

	signals := traffic.NewRegistry(nil)
	if cfg.DatabaseURL != "" {
		signals, err = db.LoadRegistry(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("load signals: %v", err)
		}
		log.Infof("loaded %d traffic signals", signals.Len())
	} else {
		log.Warn("DATABASE_URL not set, running with an empty signal inventory")
	}

	h := hub.New(cfg.ObserverBuffer, mcol)
	mgr := sim.NewManager(h, signals, cfg.TickPeriod, cfg.CancelWhenUnobserved, mcol)
	seq := corridor.NewSequencer(func(id int64) { mgr.ClearSignal(id, "corridor") }, cfg.CorridorStepDelay, mcol)
	deb := detect.New(cfg.ConfirmationWindow, mcol)

	srv := api.NewServer(api.Deps{
		Hub:             h,
		Trips:           mgr,
		Corridor:        seq,
		Debouncer:       deb,
		Signals:         signals,
		Router:          upstream.NewRouterClient(cfg.RouterURL, cfg.UpstreamTimeout, mcol),
		Detector:        upstream.NewDetectorClient(cfg.DetectorURL, cfg.UpstreamTimeout, mcol),
		DemoCorridor:    cfg.DemoCorridor,
		VehicleSpeedKmh: cfg.VehicleSpeedKmh,
		JWTSecret:       cfg.JWTSecret,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Closing the hub ends open event streams so Shutdown does not wait on them.
	httpSrv.RegisterOnShutdown(h.Close)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown(httpSrv)
		return nil
	})
	g.Go(func() error { return deb.Run(gctx) })

	// Mirror every event to NATS when configured
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		sink := h.Subscribe(hub.AsSink())
		g.Go(func() error { return pub.Mirror(gctx, sink) })
	}

	if err := g.Wait(); err != nil {
		log.Errorf("server error: %v", err)
	}

	// Allow graceful shutdown
	seq.Stop()
	mgr.Stop()
	h.Close()
	log.Info("shutdown complete")
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
