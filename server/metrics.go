package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kitlogrus "github.com/go-kit/kit/log/logrus"
	"github.com/go-kit/kit/metrics"
	discardMetrics "github.com/go-kit/kit/metrics/discard"
	expvarMetrics "github.com/go-kit/kit/metrics/expvar"
	kitinflux "github.com/go-kit/kit/metrics/influx"
	prometheusMetrics "github.com/go-kit/kit/metrics/prometheus"
	influx "github.com/influxdata/influxdb1-client/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type MetricsBuilder interface {
	BuildSyncMetrics() *SyncMetrics
	Start(ctx context.Context) error
}

const (
	MetricsBackendExpvar     = "expvar"
	MetricsBackendPrometheus = "prometheus"
	MetricsBackendInfluxDB   = "influxdb"
	MetricsBackendDiscard    = "discard"
)

type MetricsBackendConfig struct {
	Influxdb struct {
		Interval        time.Duration     `default:"1m"`
		Tags            map[string]string `usage:"any extra tags to be included with all reported metrics"`
		Addr            string
		Username        string
		Password        string
		Database        string
		RetentionPolicy string
	}
}

// SyncMetrics are shared by every link of a process. Labelled metrics must always be
// given exactly their documented label.
type SyncMetrics struct {
	// Errors is labelled by "type"
	Errors metrics.Counter
	// PacketsReceived is labelled by "subchannel"
	PacketsReceived metrics.Counter
	// PacketsSent is labelled by "subchannel"
	PacketsSent metrics.Counter
	// BytesTransmitted is labelled by "direction"
	BytesTransmitted metrics.Counter
	ActiveLinks      metrics.Gauge
	Reconnects       metrics.Counter
	// MotdQueries is labelled by "result"
	MotdQueries metrics.Counter
}

// NewMetricsBuilder creates a new MetricsBuilder based on the specified backend.
// If the backend is not recognized, a discard builder is returned.
// config can be nil if the backend is not influxdb.
func NewMetricsBuilder(backend string, config *MetricsBackendConfig) MetricsBuilder {
	switch strings.ToLower(backend) {
	case MetricsBackendExpvar:
		return &expvarMetricsBuilder{}
	case MetricsBackendPrometheus:
		return &prometheusMetricsBuilder{registerer: prometheus.DefaultRegisterer}
	case MetricsBackendInfluxDB:
		return &influxMetricsBuilder{config: config}
	default:
		return &discardMetricsBuilder{}
	}
}

// NewDiscardMetrics is used where no metrics are wanted, such as tests
func NewDiscardMetrics() *SyncMetrics {
	return discardMetricsBuilder{}.BuildSyncMetrics()
}

type expvarMetricsBuilder struct {
}

func (b expvarMetricsBuilder) Start(ctx context.Context) error {
	return nil
}

func (b expvarMetricsBuilder) BuildSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		Errors:           expvarMetrics.NewCounter("errors").With("subsystem", "sync"),
		PacketsReceived:  expvarMetrics.NewCounter("packets_received"),
		PacketsSent:      expvarMetrics.NewCounter("packets_sent"),
		BytesTransmitted: expvarMetrics.NewCounter("bytes"),
		ActiveLinks:      expvarMetrics.NewGauge("active_links"),
		Reconnects:       expvarMetrics.NewCounter("reconnects"),
		MotdQueries:      expvarMetrics.NewCounter("motd_queries"),
	}
}

type discardMetricsBuilder struct {
}

func (b discardMetricsBuilder) Start(ctx context.Context) error {
	return nil
}

func (b discardMetricsBuilder) BuildSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		Errors:           discardMetrics.NewCounter(),
		PacketsReceived:  discardMetrics.NewCounter(),
		PacketsSent:      discardMetrics.NewCounter(),
		BytesTransmitted: discardMetrics.NewCounter(),
		ActiveLinks:      discardMetrics.NewGauge(),
		Reconnects:       discardMetrics.NewCounter(),
		MotdQueries:      discardMetrics.NewCounter(),
	}
}

type influxMetricsBuilder struct {
	config  *MetricsBackendConfig
	metrics *kitinflux.Influx
}

func (b *influxMetricsBuilder) Start(ctx context.Context) error {
	influxConfig := &b.config.Influxdb
	if influxConfig.Addr == "" {
		return errors.New("influx addr is required")
	}

	ticker := time.NewTicker(influxConfig.Interval)
	client, err := influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     influxConfig.Addr,
		Username: influxConfig.Username,
		Password: influxConfig.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to create influx http client: %w", err)
	}

	go b.metrics.WriteLoop(ctx, ticker.C, client)

	logrus.WithField("addr", influxConfig.Addr).
		Debug("reporting metrics to influxdb")

	return nil
}

func (b *influxMetricsBuilder) BuildSyncMetrics() *SyncMetrics {
	influxConfig := &b.config.Influxdb

	metrics := kitinflux.New(influxConfig.Tags, influx.BatchPointsConfig{
		Database:        influxConfig.Database,
		RetentionPolicy: influxConfig.RetentionPolicy,
	}, kitlogrus.NewLogger(logrus.StandardLogger()))

	b.metrics = metrics

	return &SyncMetrics{
		Errors:           metrics.NewCounter("chatplugin_sync_errors"),
		PacketsReceived:  metrics.NewCounter("chatplugin_sync_packets_received"),
		PacketsSent:      metrics.NewCounter("chatplugin_sync_packets_sent"),
		BytesTransmitted: metrics.NewCounter("chatplugin_sync_transmitted_bytes"),
		ActiveLinks:      metrics.NewGauge("chatplugin_sync_links_active"),
		Reconnects:       metrics.NewCounter("chatplugin_sync_reconnects"),
		MotdQueries:      metrics.NewCounter("chatplugin_sync_motd_queries"),
	}
}

type prometheusMetricsBuilder struct {
	registerer prometheus.Registerer
}

func (b prometheusMetricsBuilder) Start(ctx context.Context) error {
	return nil
}

func (b prometheusMetricsBuilder) counter(name, help string, labels ...string) metrics.Counter {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatplugin_sync",
		Name:      name,
		Help:      help,
	}, labels)
	b.registerer.MustRegister(cv)
	return prometheusMetrics.NewCounter(cv)
}

func (b prometheusMetricsBuilder) BuildSyncMetrics() *SyncMetrics {
	activeLinks := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatplugin_sync",
		Name:      "active_links",
		Help:      "The number of open links",
	}, nil)
	b.registerer.MustRegister(activeLinks)

	return &SyncMetrics{
		Errors:           b.counter("errors", "The total number of errors", "type"),
		PacketsReceived:  b.counter("packets_received", "The total number of packets received", "subchannel"),
		PacketsSent:      b.counter("packets_sent", "The total number of packets sent", "subchannel"),
		BytesTransmitted: b.counter("bytes", "The total number of bytes transmitted", "direction"),
		ActiveLinks:      prometheusMetrics.NewGauge(activeLinks),
		Reconnects:       b.counter("reconnects", "The total number of link attempts after the first"),
		MotdQueries:      b.counter("motd_queries", "The total number of MoTD queries by result", "result"),
	}
}
