// internal/utils/metrics.go
package utils

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max of observed values
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// slot returns the atomic cell for name in table, creating it on first use
func (m *MetricsCollector) slot(table map[string]*int64, name string) *int64 {
	m.mu.RLock()
	cell, exists := table[name]
	m.mu.RUnlock()
	if exists {
		return cell
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cell, exists = table[name]; !exists {
		cell = new(int64)
		table[name] = cell
	}
	return cell
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	cell, exists := m.counters[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(cell)
}

// SetGauge sets a gauge metric
func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.slot(m.gauges, name), value)
}

// IncGauge increments a gauge metric
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

// DecGauge decrements a gauge metric
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	cell, exists := m.gauges[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(cell)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, cell := range m.counters {
		counters[name] = atomic.LoadInt64(cell)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, cell := range m.gauges {
		gauges[name] = atomic.LoadInt64(cell)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
		}
		histogram.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// Metric names shared by the services and the API
const (
	MetricConversationsStarted = "conversations_started_total"
	MetricConversationsEnded   = "conversations_ended_total"
	MetricConversationsActive  = "conversations_active"
	MetricResponsesSelected    = "responses_selected_total"
	MetricSubtitlesShown       = "subtitles_shown_total"
	MetricSaves                = "saves_total"
	MetricLoads                = "loads_total"
	MetricSaveFailures         = "save_failures_total"
	MetricLoadFailures         = "load_failures_total"
	MetricSceneChanges         = "scene_changes_total"
	MetricAPIRequests          = "api_requests_total"
	MetricAPIResponseTime      = "api_response_time_ms"
	MetricErrors               = "errors_total"
)

// DialogueMetrics records dialogue and save events on a collector
type DialogueMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewDialogueMetrics creates a recorder. Nil arguments select the globals.
func NewDialogueMetrics(collector *MetricsCollector, logger *Logger) *DialogueMetrics {
	if collector == nil {
		collector = GetMetricsCollector()
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &DialogueMetrics{metrics: collector, logger: logger}
}

// Collector returns the underlying collector.
func (dm *DialogueMetrics) Collector() *MetricsCollector {
	return dm.metrics
}

// RecordAPIRequest records metrics for an API request
func (dm *DialogueMetrics) RecordAPIRequest(endpoint, method string, statusCode int, duration time.Duration) {
	dm.metrics.IncrementCounter(MetricAPIRequests)
	dm.metrics.IncrementCounter("api_requests_" + method + "_" + endpoint)
	dm.metrics.RecordHistogram(MetricAPIResponseTime, duration.Milliseconds())
	dm.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")

	dm.logger.Debug("API request completed", map[string]interface{}{
		"endpoint": endpoint,
		"method":   method,
		"status":   statusCode,
		"duration": duration.Milliseconds(),
	})
}

// RecordConversationStarted counts a started conversation
func (dm *DialogueMetrics) RecordConversationStarted(title string) {
	dm.metrics.IncrementCounter(MetricConversationsStarted)
	dm.metrics.IncGauge(MetricConversationsActive)
	dm.logger.Debug("Conversation started", map[string]interface{}{"conversation": title})
}

// RecordConversationEnded counts an ended conversation
func (dm *DialogueMetrics) RecordConversationEnded(title string) {
	dm.metrics.IncrementCounter(MetricConversationsEnded)
	dm.metrics.DecGauge(MetricConversationsActive)
	dm.logger.Debug("Conversation ended", map[string]interface{}{"conversation": title})
}

// RecordSubtitle counts a subtitle shown by a view
func (dm *DialogueMetrics) RecordSubtitle() {
	dm.metrics.IncrementCounter(MetricSubtitlesShown)
}

// RecordResponseSelected counts a chosen response
func (dm *DialogueMetrics) RecordResponseSelected() {
	dm.metrics.IncrementCounter(MetricResponsesSelected)
}

// RecordSave counts a save attempt
func (dm *DialogueMetrics) RecordSave(slot int, err error) {
	if err != nil {
		dm.metrics.IncrementCounter(MetricSaveFailures)
		return
	}
	dm.metrics.IncrementCounter(MetricSaves)
}

// RecordLoad counts a load attempt
func (dm *DialogueMetrics) RecordLoad(slot int, err error) {
	if err != nil {
		dm.metrics.IncrementCounter(MetricLoadFailures)
		return
	}
	dm.metrics.IncrementCounter(MetricLoads)
}

// RecordSceneChange counts a scene transition
func (dm *DialogueMetrics) RecordSceneChange(name string) {
	dm.metrics.IncrementCounter(MetricSceneChanges)
	dm.metrics.IncrementCounter("scene_" + name + "_entries")
}

// RecordError records an error metric
func (dm *DialogueMetrics) RecordError(errorType, component string) {
	dm.metrics.IncrementCounter(MetricErrors)
	dm.metrics.IncrementCounter("errors_" + errorType)
	dm.metrics.IncrementCounter("errors_" + component)

	dm.logger.Warn("Error recorded", map[string]interface{}{
		"type":      errorType,
		"component": component,
	})
}

// StartMetricsCollection logs a metrics summary every interval until ctx ends
func (dm *DialogueMetrics) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dm.logger.Info("Periodic metrics report", map[string]interface{}{
					"metrics": dm.metrics.GetMetrics(),
				})
			}
		}
	}()
}
