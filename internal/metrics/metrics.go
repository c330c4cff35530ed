package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the collectors shared by the redirect server and the
// installed application flows.
type Metrics struct {
	RequestDurationSecs *prometheus.SummaryVec
	Authorizations      *prometheus.CounterVec
}

// New registers the collectors on reg. Collectors that are already
// registered on reg are reused, so several flows can share a registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	requestDurationSecs := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "http_request_duration_seconds",
		Help: "Duration of HTTP requests in seconds",
	}, []string{"host", "method", "path", "status"})
	authorizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2flow_authorizations_total",
		Help: "Number of completed authorization attempts",
	}, []string{"strategy", "result"})

	var err error
	if requestDurationSecs, err = register(reg, requestDurationSecs); err != nil {
		return nil, err
	}
	if authorizations, err = register(reg, authorizations); err != nil {
		return nil, err
	}

	return &Metrics{
		RequestDurationSecs: requestDurationSecs,
		Authorizations:      authorizations,
	}, nil
}

// ObserveAuthorization counts one finished authorization attempt.
func (m *Metrics) ObserveAuthorization(strategy string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.Authorizations.WithLabelValues(strategy, result).Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}
