// Package wcsevents publishes client diagnostic events to Kafka.
package wcsevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/simple-wcs/internal/core/crs"
	"github.com/mohammed-shakir/simple-wcs/internal/core/diag"
	"github.com/mohammed-shakir/simple-wcs/internal/core/model"
	"github.com/mohammed-shakir/simple-wcs/internal/core/observability"
	"github.com/mohammed-shakir/simple-wcs/internal/footprint"
	"github.com/mohammed-shakir/simple-wcs/internal/logger"
)

const wgs84 = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"

// Message is the JSON value written to the topic.
type Message struct {
	Kind      string         `json:"kind"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Cell      string         `json:"h3_cell,omitempty"`
	TS        time.Time      `json:"ts"`
}

type Option func(*Publisher)

func WithLogger(l *slog.Logger) Option { return func(p *Publisher) { p.logger = l } }

func WithResolver(r *crs.Resolver) Option { return func(p *Publisher) { p.resolver = r } }

// WithResolution sets the H3 resolution used for request extents.
func WithResolution(res int) Option { return func(p *Publisher) { p.res = res } }

// Publisher is a diag.Sink. Emit never blocks; events are dropped when the queue is full.
type Publisher struct {
	topic    string
	events   chan Message
	prod     sarama.AsyncProducer
	stopped  chan struct{}
	logger   *slog.Logger
	resolver *crs.Resolver
	res      int

	mu     sync.RWMutex
	closed bool
}

var _ diag.Sink = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string, queueSize int, opts ...Option) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("wcsevents: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, opts...), nil
}

// NewWithProducer starts a publisher on an existing producer and takes ownership of it.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, opts ...Option) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Message, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		logger:  slog.Default(),
		res:     7,
	}
	for _, o := range opts {
		o(p)
	}
	if p.resolver == nil {
		p.resolver = crs.NewResolver(nil)
	}

	go func() {
		defer close(p.stopped)
		for m := range p.events {
			b, err := json.Marshal(m)
			if err != nil {
				p.logger.Warn("wcsevents: marshal error", "err", err, "kind", m.Kind)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(m.Kind),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("wcsevents: producer error", "err", err)
			}
		}
	}()

	return p
}

func (p *Publisher) Emit(ctx context.Context, ev diag.Event) {
	m := p.toMessage(ctx, ev)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- m:
	default:
		observability.IncEventsDropped()
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("wcsevents: close producer: %w", err)
	}
	return nil
}

func (p *Publisher) toMessage(ctx context.Context, ev diag.Event) Message {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	m := Message{
		Kind:      string(ev.Kind),
		Level:     ev.Level.String(),
		Message:   ev.Message,
		RequestID: logger.RequestID(ctx),
		TS:        ts.UTC(),
	}
	if len(ev.Fields) > 0 {
		m.Fields = make(map[string]any, len(ev.Fields))
		for k, v := range ev.Fields {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			m.Fields[k] = v
		}
	}
	if ev.Kind == diag.KindRequestBuilt {
		m.Cell = p.cellOf(ev.Fields)
	}
	return m
}

// cellOf returns the H3 cell holding the centre of a request extent, or "".
func (p *Publisher) cellOf(fields map[string]any) string {
	ext, ok := fields["extent"].(model.Extent)
	if !ok {
		return ""
	}
	src, _ := fields["subsetting_crs"].(string)
	if src == "" {
		return ""
	}
	lo, err := p.resolver.Transform(model.Point{X: ext.MinX, Y: ext.MinY}, src, wgs84)
	if err != nil {
		return ""
	}
	hi, err := p.resolver.Transform(model.Point{X: ext.MaxX, Y: ext.MaxY}, src, wgs84)
	if err != nil {
		return ""
	}
	cell, err := footprint.CenterCell(model.ExtentFromCorners(lo, hi), p.res)
	if err != nil {
		return ""
	}
	return cell
}
