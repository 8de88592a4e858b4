package lighting

import (
	"time"

	"github.com/annel0/voxel-light/internal/world"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics набор Prometheus-метрик движка освещения.
// Нулевой указатель допустим: все методы ничего не делают.
type Metrics struct {
	calls       *prometheus.CounterVec
	visits      *prometheus.CounterVec
	remeshed    prometheus.Counter
	callLatency *prometheus.HistogramVec
}

// NewMetrics создаёт метрики и регистрирует их в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lighting",
			Name:      "calls_total",
			Help:      "Число вызовов движка освещения по операциям.",
		}, []string{"op"}),
		visits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lighting",
			Name:      "queue_pops_total",
			Help:      "Число извлечений из очередей BFS по проходам и каналам.",
		}, []string{"pass", "channel"}),
		remeshed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lighting",
			Name:      "chunks_remeshed_total",
			Help:      "Сколько раз чанки помечались для перестроения меша.",
		}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lighting",
			Name:      "call_duration_seconds",
			Help:      "Длительность вызовов движка освещения.",
			Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"op"}),
	}

	reg.MustRegister(m.calls, m.visits, m.remeshed, m.callLatency)
	return m
}

func (m *Metrics) observeCall(op string, start time.Time, remeshed int) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(op).Inc()
	m.callLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.remeshed.Add(float64(remeshed))
}

func (m *Metrics) addPops(pass string, ch world.Channel, n int) {
	if m == nil || n == 0 {
		return
	}
	m.visits.WithLabelValues(pass, ch.String()).Add(float64(n))
}
