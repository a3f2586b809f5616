// Package metrics exposes run counters in Prometheus textfile format.
package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ruleforge/ruleforge/internal/merge"
	"github.com/ruleforge/ruleforge/internal/models"
)

const namespace = "ruleforge"

// Collector holds one registry per CLI invocation.
type Collector struct {
	registry       *prometheus.Registry
	rulesGenerated *prometheus.CounterVec
	skipped        prometheus.Counter
	duplicates     prometheus.Counter
	errors         *prometheus.CounterVec
	mergeRules     *prometheus.CounterVec
	healthScore    prometheus.Gauge
	findings       *prometheus.GaugeVec
	policyRules    *prometheus.GaugeVec
	mu             sync.Mutex
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		rulesGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_generated_total",
			Help:      "Rules synthesized from artifacts, by rule type",
		}, []string{"type"}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_skipped_total",
			Help:      "Artifacts that produced no rule",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_duplicate_total",
			Help:      "Artifacts removed by deduplication",
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Non-fatal errors, by stage",
		}, []string{"stage"}),
		mergeRules: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_rules_total",
			Help:      "Rules handled by merges, by outcome",
		}, []string{"outcome"}),
		healthScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_score",
			Help:      "Health score of the last evaluated policy",
		}),
		findings: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_findings",
			Help:      "Findings of the last evaluated policy, by severity",
		}, []string{"severity"}),
		policyRules: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policy_rules",
			Help:      "Rules in the output policy, by collection",
		}, []string{"collection"}),
	}
}

// Record* methods are no-ops on a nil Collector.
func (c *Collector) RecordGeneration(s models.GenerationStatistics) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rulesGenerated.WithLabelValues(string(models.RuleTypePublisher)).Add(float64(s.PublisherRules))
	c.rulesGenerated.WithLabelValues(string(models.RuleTypeHash)).Add(float64(s.HashRules))
	c.rulesGenerated.WithLabelValues(string(models.RuleTypePath)).Add(float64(s.PathRules))
	c.skipped.Add(float64(s.Skipped))
	c.duplicates.Add(float64(s.Duplicates))
	c.errors.WithLabelValues("synth").Add(float64(s.Errors))
}

func (c *Collector) RecordMerge(s merge.Stats) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mergeRules.WithLabelValues("added").Add(float64(s.Added))
	c.mergeRules.WithLabelValues("replaced").Add(float64(s.Replaced))
	c.mergeRules.WithLabelValues("discarded").Add(float64(s.Discarded))
	c.errors.WithLabelValues("merge").Add(float64(s.Errors))
}

func (c *Collector) RecordHealth(r models.HealthReport) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthScore.Set(float64(r.Score))
	c.findings.WithLabelValues(string(models.SeverityCritical)).Set(float64(r.Summary.Critical))
	c.findings.WithLabelValues(string(models.SeverityWarning)).Set(float64(r.Summary.Warning))
	c.findings.WithLabelValues(string(models.SeverityInfo)).Set(float64(r.Summary.Info))
}

func (c *Collector) RecordPolicy(p *models.Policy) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, coll := range p.OrderedCollections() {
		c.policyRules.WithLabelValues(string(coll.Type)).Set(float64(len(coll.Rules)))
	}
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Registry for tests and embedding.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

type collectorKey struct{}

func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// From returns nil when --metrics-file is not set.
func From(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}
