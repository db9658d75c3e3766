package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/cv-shortlist/internal/infrastructure/resilience"
)

const (
	DefaultReindexSubject = "cv.index.reindex"
	DefaultRebuiltSubject = "cv.index.rebuilt"

	reindexQueueGroup = "indexers"
)

// Events carries reindex requests to workers and rebuilt notifications to
// every API replica. Requests use a queue group so exactly one worker builds;
// notifications fan out.
type Events struct {
	conn           *nats.Conn
	reindexSubject string
	rebuiltSubject string
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Options struct {
	ReindexSubject       string
	RebuiltSubject       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string) (*Events, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Events, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("cv-shortlist"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Events{
		conn:           conn,
		reindexSubject: orDefault(options.ReindexSubject, DefaultReindexSubject),
		rebuiltSubject: orDefault(options.RebuiltSubject, DefaultRebuiltSubject),
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}, nil
}

func (e *Events) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}

func (e *Events) PublishReindexRequested(ctx context.Context, stagingPath string) error {
	return e.publish(ctx, e.reindexSubject, stagingPath)
}

func (e *Events) SubscribeReindexRequested(ctx context.Context, handler func(context.Context, string) error) error {
	return e.subscribe(ctx, e.reindexSubject, reindexQueueGroup, handler)
}

func (e *Events) PublishIndexRebuilt(ctx context.Context, buildID string) error {
	return e.publish(ctx, e.rebuiltSubject, buildID)
}

func (e *Events) SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context, string) error) error {
	return e.subscribe(ctx, e.rebuiltSubject, "", handler)
}

func (e *Events) publish(ctx context.Context, subject, payload string) error {
	call := func(_ context.Context) error {
		if err := e.conn.Publish(subject, []byte(payload)); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if e.executor != nil {
		err = e.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// subscribe blocks until ctx is done, then drains the subscription. An empty
// group subscribes every instance.
func (e *Events) subscribe(ctx context.Context, subject, group string, handler func(context.Context, string) error) error {
	onMsg := func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			e.logger.Error("event_handler_failed", "subject", subject, "payload", string(msg.Data), "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = e.conn.QueueSubscribe(subject, group, onMsg)
	} else {
		sub, err = e.conn.Subscribe(subject, onMsg)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := e.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := e.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
