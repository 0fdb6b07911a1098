// Package metrics define las métricas Prometheus del token authority.
// Un *Metrics nil es válido: todos los métodos son no-op.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UnknownClient es la etiqueta client_id cuando el id no resolvió a un cliente.
const UnknownClient = "unknown"

type Metrics struct {
	tokensIssued    *prometheus.CounterVec
	tokenChecks     *prometheus.CounterVec
	checkDuration   *prometheus.HistogramVec
	registryLookups *prometheus.CounterVec
	authRequests    *prometheus.CounterVec
	revocations     *prometheus.CounterVec
}

// New crea y registra las métricas en reg (o en el registry default si es nil).
// Registrar dos veces en el mismo registry reutiliza los collectors existentes.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenauthority_tokens_issued_total",
			Help: "Tokens emitidos por cliente y tipo",
		}, []string{"client_id", "kind"}),
		tokenChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenauthority_token_checks_total",
			Help: "Verificaciones de token por cliente y resultado",
		}, []string{"client_id", "result"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokenauthority_token_check_duration_seconds",
			Help:    "Latencia de verificación de tokens",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		registryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenauthority_client_registry_lookups_total",
			Help: "Lookups del registry de clientes (hit|miss|not_found|error)",
		}, []string{"result"}),
		authRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenauthority_authorization_requests_total",
			Help: "Operaciones sobre authorization requests",
		}, []string{"op", "result"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenauthority_revocation_ops_total",
			Help: "Operaciones sobre la lista de revocación",
		}, []string{"op", "result"}),
	}
	var errs []error
	m.tokensIssued = register(reg, m.tokensIssued, &errs)
	m.tokenChecks = register(reg, m.tokenChecks, &errs)
	m.checkDuration = register(reg, m.checkDuration, &errs)
	m.registryLookups = register(reg, m.registryLookups, &errs)
	m.authRequests = register(reg, m.authRequests, &errs)
	m.revocations = register(reg, m.revocations, &errs)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return m, nil
}

// register reutiliza un collector ya registrado con la misma descripción; un
// conflicto real (mismo nombre, otras labels) se acumula en errs.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, errs *[]error) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	*errs = append(*errs, err)
	return c
}

func kind(isRefresh bool) string {
	if isRefresh {
		return "refresh"
	}
	return "access"
}

func (m *Metrics) TokenIssued(clientID string, isRefresh bool) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(clientID, kind(isRefresh)).Inc()
}

// TokenChecked registra el resultado ("ok" o el kind del error) y la latencia.
func (m *Metrics) TokenChecked(clientID string, expectAccess bool, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.tokenChecks.WithLabelValues(clientID, result).Inc()
	m.checkDuration.WithLabelValues(kind(!expectAccess)).Observe(took.Seconds())
}

func (m *Metrics) RegistryLookup(result string) {
	if m == nil {
		return
	}
	m.registryLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) AuthRequest(op, result string) {
	if m == nil {
		return
	}
	m.authRequests.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Revocation(op, result string) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(op, result).Inc()
}
