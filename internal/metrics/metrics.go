// Package metrics counts security events in a Prometheus registry.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dmitrijs2005/crmkeeper/internal/audit"
)

const namespace = "crmkeeper"

// Recorder counts every action and forwards it to the wrapped recorder.
type Recorder struct {
	next   audit.Recorder
	events *prometheus.CounterVec
}

func NewRecorder(next audit.Recorder, reg prometheus.Registerer) (*Recorder, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "security_events_total",
		Help:      "Security-relevant events by action.",
	}, []string{"action"})

	if err := reg.Register(events); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return &Recorder{next: next, events: events}, nil
}

func (r *Recorder) Record(ctx context.Context, action, details string) {
	r.events.WithLabelValues(action).Inc()
	r.next.Record(ctx, action, details)
}

// Sample is one gathered counter value.
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// Gather flattens the counters in g, sorted by name and labels.
func Gather(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			out = append(out, Sample{
				Name:   mf.GetName(),
				Labels: labels(m.GetLabel()),
				Value:  m.GetCounter().GetValue(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Labels < out[j].Labels
	})
	return out, nil
}

func labels(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	return strings.Join(parts, ",")
}
