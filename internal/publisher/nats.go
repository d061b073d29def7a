package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/NagaPranathiRallabandi/marg-ai/internal/hub"
)

var log = logrus.WithField("module", "publisher")

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc          Conn
	raw         *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("marg-ai-corridor"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warnf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Infof("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Infof("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, logSubjects, m)
	p.raw = nc
	return p, nil
}

func newPublisher(nc Conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: subjectToken(prefix), logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.raw != nil {
		_ = p.raw.Drain()
		p.raw.Close()
	}
}

// EventMessage is the JSON body published for every hub event.
type EventMessage struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Subject returns the subject an event is published on: <prefix>.<event>.
func (p *NATSPublisher) Subject(event string) string {
	return fmt.Sprintf("%s.%s", p.prefix, subjectToken(event))
}

func (p *NATSPublisher) PublishEvent(e hub.Event) error {
	subject := p.Subject(e.Name)
	b, err := json.Marshal(EventMessage{Event: e.Name, Timestamp: e.At, Data: e.Data})
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Infof("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Mirror forwards every event the observer receives until ctx is done or the
// observer is closed. Publish errors are logged and skipped.
func (p *NATSPublisher) Mirror(ctx context.Context, o *hub.Observer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-o.Events():
			if !ok {
				return nil
			}
			if err := p.PublishEvent(e); err != nil {
				log.Errorf("publish error for %s: %v", e.Name, err)
			}
		}
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
