package cloudmetrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/ruuviproxy/internal/config"
	obstracing "github.com/smallbiznis/ruuviproxy/internal/observability/tracing"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	exporterPrometheusRemoteWrite = "prometheus_remote_write"
	exporterPrometheusPushgateway = "prometheus_pushgateway"
	defaultPushTimeout            = 5 * time.Second
)

// Pusher ships a snapshot of the proxy collectors to a remote collector.
// Implementations must not start background goroutines.
type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

// NewPusher builds a pusher from config. Misconfiguration is logged and yields
// nil so the proxy keeps serving.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Cloud.Metrics.Enabled {
		return nil
	}

	exporter := strings.ToLower(strings.TrimSpace(cfg.Cloud.Metrics.Exporter))
	endpoint := strings.TrimSpace(cfg.Cloud.Metrics.Endpoint)
	authToken := strings.TrimSpace(cfg.Cloud.Metrics.AuthToken)

	if exporter == "" {
		logger.Warn("cloud metrics disabled", zap.Error(errors.New("cloud.metrics.exporter is required")))
		return nil
	}
	if endpoint == "" {
		logger.Warn("cloud metrics disabled", zap.Error(errors.New("cloud.metrics.endpoint is required")))
		return nil
	}

	switch exporter {
	case exporterPrometheusRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			logger.Warn("cloud metrics disabled", zap.Error(fmt.Errorf("invalid cloud.metrics.endpoint: %w", err)))
			return nil
		}
		return NewRemoteWritePusher(endpoint, authToken, externalLabels(cfg))
	case exporterPrometheusPushgateway:
		return NewPushgatewayPusher(endpoint, cfg.AppName, map[string]string{
			"environment": strings.TrimSpace(cfg.Environment),
		})
	default:
		logger.Warn("cloud metrics disabled", zap.String("exporter", exporter))
		return nil
	}
}

// RemoteWritePusher sends the proxy's own families to a Prometheus
// remote_write endpoint. Go runtime and process collectors stay local.
type RemoteWritePusher struct {
	endpoint   string
	authToken  string
	labels     map[string]string
	httpClient *http.Client
}

// NewRemoteWritePusher returns a pusher for Prometheus remote_write. labels
// are attached to every series, e.g. service and environment.
func NewRemoteWritePusher(endpoint, authToken string, labels map[string]string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(authToken),
		labels:    labels,
		httpClient: obstracing.WrapHTTPClient(&http.Client{
			Timeout: defaultPushTimeout,
		}),
	}
}

// Push sends counters, gauges and histogram sum/count pairs via remote_write.
func (p *RemoteWritePusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}

	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	if len(families) == 0 {
		return nil
	}

	series := buildRemoteWriteSeries(families, p.labels, time.Now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	req := &prompb.WriteRequest{Timeseries: series}
	payload, err := proto.Marshal(protoadapt.MessageV2Of(req))
	if err != nil {
		return err
	}

	compressed := snappy.Encode(nil, payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

// PushgatewayPusher sends metrics to a Prometheus Pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

// NewPushgatewayPusher returns a pusher for Prometheus Pushgateway.
func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{
		endpoint: endpoint,
		job:      strings.TrimSpace(job),
		grouping: grouping,
	}
}

// Push replaces the job's metric group on the Pushgateway.
func (p *PushgatewayPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}
	if strings.TrimSpace(p.endpoint) == "" {
		return errors.New("pushgateway endpoint is required")
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(gatherer)
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}

	return pusher.PushContext(ctx)
}

const proxyMetricPrefix = "ruuviproxy_"

func externalLabels(cfg config.Config) map[string]string {
	labels := map[string]string{}
	if service := strings.TrimSpace(cfg.AppName); service != "" {
		labels["service"] = service
	}
	if env := strings.TrimSpace(cfg.Environment); env != "" {
		labels["environment"] = env
	}
	return labels
}

type sample struct {
	name  string
	value float64
}

func buildRemoteWriteSeries(families []*dto.MetricFamily, external map[string]string, timestampMs int64) []prompb.TimeSeries {
	series := make([]prompb.TimeSeries, 0, len(families))
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), proxyMetricPrefix) {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, s := range samplesFor(family, metric) {
				series = append(series, prompb.TimeSeries{
					Labels:  seriesLabels(s.name, metric.GetLabel(), external),
					Samples: []prompb.Sample{{Value: s.value, Timestamp: timestampMs}},
				})
			}
		}
	}
	return series
}

// seriesLabels merges metric labels over external ones and sorts by name,
// which remote_write receivers require.
func seriesLabels(name string, pairs []*dto.LabelPair, external map[string]string) []prompb.Label {
	merged := make(map[string]string, len(pairs)+len(external)+1)
	for k, v := range external {
		merged[k] = v
	}
	for _, pair := range pairs {
		merged[pair.GetName()] = pair.GetValue()
	}
	merged["__name__"] = name

	labels := make([]prompb.Label, 0, len(merged))
	for k, v := range merged {
		labels = append(labels, prompb.Label{Name: k, Value: v})
	}
	sort.Slice(labels, func(i, j int) bool {
		return labels[i].Name < labels[j].Name
	})
	return labels
}

func samplesFor(family *dto.MetricFamily, metric *dto.Metric) []sample {
	if metric == nil {
		return nil
	}
	name := family.GetName()
	switch family.GetType() {
	case dto.MetricType_COUNTER:
		if c := metric.GetCounter(); c != nil {
			return []sample{{name, c.GetValue()}}
		}
	case dto.MetricType_GAUGE:
		if g := metric.GetGauge(); g != nil {
			return []sample{{name, g.GetValue()}}
		}
	case dto.MetricType_HISTOGRAM:
		if h := metric.GetHistogram(); h != nil {
			return []sample{
				{name + "_sum", h.GetSampleSum()},
				{name + "_count", float64(h.GetSampleCount())},
			}
		}
	}
	return nil
}
