package client

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK            = "ok"
	outcomeSerialization = "serialization_error"
	outcomeTransport     = "transport_error"
	outcomeOperation     = "operation_error"
)

type metrics struct {
	commands *prometheus.CounterVec
	txOps    *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redisjson_commands_total",
			Help: "Total number of single commands issued through the JSON layer",
		}, []string{"command", "outcome"}),
		txOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redisjson_tx_operations_total",
			Help: "Total number of operations committed in transaction batches",
		}, []string{"outcome"}),
	}
}

// register attaches the collectors to reg, adopting already registered ones.
func (m *metrics) register(reg prometheus.Registerer) error {
	var err error
	m.commands, err = registerCounterVec(reg, m.commands)
	if err != nil {
		return err
	}
	m.txOps, err = registerCounterVec(reg, m.txOps)
	return err
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing, nil
		}
	}
	return c, errors.WithStack(err)
}

func (m *metrics) command(name, outcome string) {
	m.commands.WithLabelValues(name, outcome).Inc()
}

func (m *metrics) txOperations(outcome string, n int) {
	if n == 0 {
		return
	}
	m.txOps.WithLabelValues(outcome).Add(float64(n))
}
