package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"jobreg/pkg/logx"
)

const DefaultSubjectPrefix = "jobreg.events"

// NATSConfig configures the optional NATS forwarder.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	ClientName    string
	Buffer        int
}

// Publisher is the subset of *nats.Conn used by Forwarder.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// DialNATS connects with unlimited reconnects.
func DialNATS(cfg NATSConfig, log logx.Logger) (*nats.Conn, error) {
	name := cfg.ClientName
	if name == "" {
		name = "jobregd"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", logx.Err(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return nc, nil
}

// Forwarder republishes bus events as JSON on <prefix>.<event type>.
type Forwarder struct {
	bus    Bus
	pub    Publisher
	prefix string
	buffer int
	log    logx.Logger
}

func NewForwarder(bus Bus, pub Publisher, cfg NATSConfig, log logx.Logger) *Forwarder {
	prefix := strings.TrimSuffix(strings.TrimSpace(cfg.SubjectPrefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Forwarder{
		bus:    bus,
		pub:    pub,
		prefix: prefix,
		buffer: buffer,
		log:    log.With(logx.String("comp", "nats-forwarder")),
	}
}

// Subject returns the subject used for events of type typ.
func (f *Forwarder) Subject(typ string) string { return f.prefix + "." + typ }

// Run forwards events until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	ch, unsub := f.bus.Subscribe(f.buffer)
	defer unsub()
	f.log.Info("forwarding events", logx.String("prefix", f.prefix))
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			f.forward(e)
		}
	}
}

func (f *Forwarder) forward(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		f.log.Warn("encode event failed", logx.String("type", e.Type), logx.Err(err))
		return
	}
	if err := f.pub.Publish(f.Subject(e.Type), data); err != nil {
		f.log.Warn("publish event failed", logx.String("type", e.Type), logx.Err(err))
	}
}
