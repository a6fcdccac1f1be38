package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/smallbiznis/ruuviproxy/internal/config"
	ingestdomain "github.com/smallbiznis/ruuviproxy/internal/ingest/domain"
	obscontext "github.com/smallbiznis/ruuviproxy/internal/observability/context"
	"github.com/smallbiznis/ruuviproxy/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 500

	// covers a full relay at default settings (4 x 25s plus 7s of backoff);
	// the local write does not depend on it
	messageTimeout = 2 * time.Minute
)

// Subscriber consumes gateway batches published over MQTT and hands each
// payload to the ingest service.
type Subscriber struct {
	cfg     config.MQTTConfig
	ingest  ingestdomain.Service
	log     *zap.Logger
	factory func(*paho.ClientOptions) paho.Client

	mu      sync.Mutex
	client  paho.Client
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	// in-flight handlers; Add only happens under mu while !stopped
	wg sync.WaitGroup
}

func NewSubscriber(cfg config.MQTTConfig, ingest ingestdomain.Service, log *zap.Logger) *Subscriber {
	return &Subscriber{
		cfg:     cfg,
		ingest:  ingest,
		log:     log.Named("ingest.mqtt"),
		factory: paho.NewClient,
	}
}

func (s *Subscriber) Enabled() bool {
	return s != nil && s.cfg.Enabled()
}

func (s *Subscriber) Start(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	opts.OnConnectionLost = func(_ paho.Client, err error) {
		s.log.Warn("mqtt connection lost", zap.Error(err))
	}
	opts.OnConnect = func(c paho.Client) {
		s.log.Info("mqtt connected, subscribing", zap.String("topic", s.cfg.Topic))
		token := c.Subscribe(s.cfg.Topic, s.qos(), s.onMessage)
		if token.Wait() && token.Error() != nil {
			s.log.Error("mqtt subscribe failed", zap.String("topic", s.cfg.Topic), zap.Error(token.Error()))
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	client := s.factory(opts)

	s.mu.Lock()
	s.client = client
	s.ctx = runCtx
	s.cancel = cancel
	s.stopped = false
	s.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// ConnectRetry keeps trying in the background.
		s.log.Warn("mqtt broker not reachable yet, retrying in background", zap.String("broker", s.cfg.Broker))
		return nil
	}
	if err := token.Error(); err != nil {
		cancel()
		return err
	}
	return nil
}

func (s *Subscriber) Stop(context.Context) error {
	s.mu.Lock()
	client := s.client
	cancel := s.cancel
	s.client = nil
	s.stopped = true
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	if client.IsConnected() {
		client.Disconnect(disconnectQuiesce)
	}
	s.wg.Wait()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *Subscriber) qos() byte {
	switch {
	case s.cfg.QoS <= 0:
		return 0
	case s.cfg.QoS >= 2:
		return 2
	default:
		return 1
	}
}

func (s *Subscriber) onMessage(_ paho.Client, m paho.Message) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.log.Debug("dropping mqtt message after stop", zap.String("topic", m.Topic()))
		return
	}
	s.wg.Add(1)
	base := s.ctx
	s.mu.Unlock()
	defer s.wg.Done()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(base, messageTimeout)
	defer cancel()
	s.Handle(ctx, m.Topic(), m.Payload())
}

// Handle runs one MQTT payload through the ingest pipeline. Failures are
// logged; there is no reply channel back to the gateway.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) {
	ctx, _ = obscontext.EnsureCorrelationID(ctx)
	if gw := gatewayFromTopic(topic); gw != "" {
		ctx = obscontext.WithGatewayID(ctx, gw)
	}
	log := logger.WithContext(ctx, s.log).With(zap.String("topic", topic))

	defer func() {
		if r := recover(); r != nil {
			log.Error("mqtt message handling panicked", zap.Any("panic", r))
		}
	}()

	res, err := s.ingest.Ingest(ctx, payload)
	switch {
	case errors.Is(err, ingestdomain.ErrValidation):
		log.Warn("mqtt batch rejected", zap.Error(err))
	case err != nil:
		log.Error("mqtt batch failed", zap.Error(err))
	default:
		log.Debug("mqtt batch ingested",
			zap.Int("stored", res.Stored),
			zap.Bool("forwarded", res.Forwarded),
		)
	}
}

// gatewayFromTopic extracts the middle segment of "<prefix>/<gateway>/<suffix>".
func gatewayFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return strings.TrimSpace(parts[len(parts)-2])
}
