// Package natsbridge connects helmd to NATS. It mirrors governance events
// onto subjects and accepts proposals and decisions as request/reply
// messages.
//
// Subjects, relative to the configured prefix (default "helmd"):
//   - {prefix}.events.{event_type}     published for every pipeline event
//   - {prefix}.proposals.submit        request: proposal JSON, reply: SubmitResult
//   - {prefix}.intents.decide          request: DecideRequest, reply: Reply
package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helmd/internal/control"
	"github.com/fyrsmithlabs/helmd/internal/governance"
)

// DefaultPrefix is the subject root.
const DefaultPrefix = "helmd"

// SourceHeader carries the proposal source on submit requests.
const SourceHeader = "Helmd-Source"

// defaultRequestTimeout bounds the handling of one request.
const defaultRequestTimeout = 10 * time.Second

// Subscriber is the part of the event bus the bridge needs.
type Subscriber interface {
	Subscribe(governance.Handler) func()
}

// DecideRequest is the body of a decide request.
type DecideRequest struct {
	ID       string           `json:"id"`
	Decision control.Decision `json:"decision"`
	Actor    string           `json:"actor,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// Reply wraps every response. Error is set when the request failed.
type Reply struct {
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// Bridge links a NATS connection to a control Service. It does not own the
// connection.
type Bridge struct {
	nc      *nats.Conn
	service *control.Service
	prefix  string
	logger  *zap.Logger
	timeout time.Duration

	mu          sync.Mutex
	subs        []*nats.Subscription
	unsubscribe []func()
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPrefix sets the subject root.
func WithPrefix(prefix string) Option {
	return func(b *Bridge) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRequestTimeout bounds the handling of each request.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// New builds a bridge. service may be nil when only events are mirrored.
func New(nc *nats.Conn, service *control.Service, opts ...Option) (*Bridge, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	b := &Bridge{
		nc:      nc,
		service: service,
		prefix:  DefaultPrefix,
		logger:  zap.NewNop(),
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// EventSubject returns the subject events of type t are published on.
func (b *Bridge) EventSubject(t governance.EventType) string {
	return fmt.Sprintf("%s.events.%s", b.prefix, t)
}

// SubmitSubject is the subject proposals are submitted on.
func (b *Bridge) SubmitSubject() string {
	return b.prefix + ".proposals.submit"
}

// DecideSubject is the subject decisions are submitted on.
func (b *Bridge) DecideSubject() string {
	return b.prefix + ".intents.decide"
}

// Mirror publishes every event from bus to NATS until Close.
func (b *Bridge) Mirror(bus Subscriber) {
	cancel := bus.Subscribe(b.publishEvent)
	b.mu.Lock()
	b.unsubscribe = append(b.unsubscribe, cancel)
	b.mu.Unlock()
}

func (b *Bridge) publishEvent(e governance.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Warn("marshal event", zap.String("event", string(e.Type)), zap.Error(err))
		return
	}
	if err := b.nc.Publish(b.EventSubject(e.Type), data); err != nil {
		b.logger.Warn("publish event", zap.String("event", string(e.Type)), zap.Error(err))
	}
}

// Serve registers the submit and decide request handlers.
func (b *Bridge) Serve() error {
	if b.service == nil {
		return errors.New("control service is required to serve requests")
	}
	submit, err := b.nc.Subscribe(b.SubmitSubject(), b.handleSubmit)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.SubmitSubject(), err)
	}
	decide, err := b.nc.Subscribe(b.DecideSubject(), b.handleDecide)
	if err != nil {
		_ = submit.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", b.DecideSubject(), err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, submit, decide)
	b.mu.Unlock()

	b.logger.Info("nats bridge serving",
		zap.String("submit", b.SubmitSubject()),
		zap.String("decide", b.DecideSubject()),
	)
	return nil
}

func (b *Bridge) handleSubmit(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	source := governance.SourceProposer
	if msg.Header != nil {
		if s := msg.Header.Get(SourceHeader); s != "" {
			source = governance.Source(s)
		}
	}

	res, err := b.service.SubmitProposalJSON(ctx, msg.Data, source)
	if err != nil {
		b.respond(msg, Reply{Error: err.Error()})
		return
	}
	b.respond(msg, Reply{Result: res})
}

func (b *Bridge) handleDecide(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var req DecideRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.respond(msg, Reply{Error: "invalid decide request: " + err.Error()})
		return
	}
	if req.ID == "" {
		b.respond(msg, Reply{Error: "id is required"})
		return
	}

	res, err := b.service.Decide(ctx, req.ID, req.Decision, req.Actor, req.Reason)
	reply := Reply{}
	if res != nil {
		reply.Result = res
	}
	if err != nil {
		reply.Error = err.Error()
	}
	b.respond(msg, reply)
}

func (b *Bridge) respond(msg *nats.Msg, reply Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		b.logger.Warn("marshal reply", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn("respond", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// Close removes the bridge's subscriptions. The connection stays open.
func (b *Bridge) Close() error {
	b.mu.Lock()
	subs, cancels := b.subs, b.unsubscribe
	b.subs, b.unsubscribe = nil, nil
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connect dials url with the reconnect policy helmd uses.
func Connect(url string, logger *zap.Logger, extra ...nats.Option) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name("helmd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return nc, nil
}
