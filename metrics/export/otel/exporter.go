package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() nickauth.MetricsSnapshot
	AuditDropped() uint64
}

// OutcomeKey is the attribute that splits one flow counter into outcomes.
const OutcomeKey = attribute.Key("outcome")

type outcome struct {
	id    nickauth.MetricID
	value string
}

// family is one OTel counter covering every outcome of a flow.
type family struct {
	name     string
	help     string
	outcomes []outcome
}

var families = []family{
	{name: "nickauth.login", help: "Login attempts by outcome.", outcomes: []outcome{
		{nickauth.MetricLoginSuccess, "success"},
		{nickauth.MetricLoginFailure, "invalid_credentials"},
		{nickauth.MetricLoginLocked, "locked"},
	}},
	{name: "nickauth.register", help: "Registrations by outcome.", outcomes: []outcome{
		{nickauth.MetricRegisterSuccess, "success"},
		{nickauth.MetricRegisterConflict, "conflict"},
		{nickauth.MetricCaptchaFailure, "captcha_failed"},
	}},
	{name: "nickauth.refresh", help: "Refresh token presentations by outcome.", outcomes: []outcome{
		{nickauth.MetricRefreshSuccess, "rotated"},
		{nickauth.MetricRefreshFailure, "rejected"},
		{nickauth.MetricRefreshReuseDetected, "reuse_detected"},
	}},
	{name: "nickauth.password_reset", help: "Password reset requests and confirmations by outcome.", outcomes: []outcome{
		{nickauth.MetricPasswordResetRequest, "requested"},
		{nickauth.MetricPasswordResetRateLimited, "rate_limited"},
		{nickauth.MetricPasswordResetConfirmSuccess, "confirmed"},
		{nickauth.MetricPasswordResetConfirmFailure, "rejected"},
	}},
	{name: "nickauth.account", help: "Account state changes.", outcomes: []outcome{
		{nickauth.MetricAccountLocked, "locked"},
		{nickauth.MetricAccountDeactivated, "deactivated"},
		{nickauth.MetricAccountDeleted, "deleted"},
		{nickauth.MetricSessionsRevoked, "sessions_revoked"},
		{nickauth.MetricPasswordRehash, "password_rehashed"},
	}},
	{name: "nickauth.requests", help: "Other auth requests by kind.", outcomes: []outcome{
		{nickauth.MetricCheckUser, "check"},
		{nickauth.MetricLogout, "logout"},
		{nickauth.MetricAuthenticateFailure, "authenticate_rejected"},
		{nickauth.MetricAuthRateLimited, "auth_rate_limited"},
	}},
}

type observedFamily struct {
	family
	instrument metric.Int64ObservableCounter
	attrs      []metric.ObserveOption
}

type observedLatency struct {
	id      nickauth.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine counters as observable OTel instruments, one
// counter per flow with an outcome attribute. The Authenticate latency
// histogram becomes a cumulative bucket gauge keyed by "le" plus a count.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	families     []observedFamily
	latencies    []observedLatency
	bucketAttrs  []metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
}

func NewExporter(meter metric.Meter, engine *nickauth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source, bucketAttrs: bucketOptions()}
	observables := make([]metric.Observable, 0, len(families)+2*len(internaldefs.HistogramDefs)+1)

	for _, f := range families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.name, err)
		}
		of := observedFamily{family: f, instrument: ins}
		for _, o := range f.outcomes {
			of.attrs = append(of.attrs, metric.WithAttributes(OutcomeKey.String(o.value)))
		}
		e.families = append(e.families, of)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", def.Name, err)
		}
		e.latencies = append(e.latencies, observedLatency{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	auditDropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped because the buffer was full."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for i, oc := range f.outcomes {
			o.ObserveInt64(f.instrument, int64(snap.Counters[oc.id]), f.attrs[i])
		}
	}
	for _, l := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, v := range cumulative {
			o.ObserveInt64(l.buckets, int64(v), e.bucketAttrs[i])
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func bucketOptions() []metric.ObserveOption {
	out := make([]metric.ObserveOption, 0, len(internaldefs.HistogramUpperBounds)+1)
	for _, b := range internaldefs.HistogramUpperBounds {
		out = append(out, metric.WithAttributes(attribute.String("le", strconv.FormatFloat(b, 'g', -1, 64))))
	}
	return append(out, metric.WithAttributes(attribute.String("le", "+Inf")))
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
