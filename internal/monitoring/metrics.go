package monitoring

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"flightdeck/internal/game"
)

var (
	HttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RoundsSettled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flightdeck_rounds_settled_total",
			Help: "Total rounds settled across all sessions",
		},
	)

	CrashPoints = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flightdeck_crash_point",
			Help:    "Terminal multiplier of settled rounds",
			Buckets: []float64{1, 1.01, 1.5, 2, 3, 5, 10, 20, 50, 100, 1000},
		},
	)

	WagersResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightdeck_wagers_total",
			Help: "Wagers by final state",
		},
		[]string{"state"},
	)

	AmountWagered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flightdeck_wagered_amount_total",
			Help: "Sum of committed stakes",
		},
	)

	AmountPaidOut = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flightdeck_paid_out_amount_total",
			Help: "Sum of cash-out payouts",
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightdeck_active_sessions",
			Help: "Player sessions currently running",
		},
	)

	SessionsHalted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flightdeck_sessions_halted_total",
			Help: "Sessions stopped by an integrity violation",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HttpRequests)
		prometheus.MustRegister(RoundsSettled)
		prometheus.MustRegister(CrashPoints)
		prometheus.MustRegister(WagersResolved)
		prometheus.MustRegister(AmountWagered)
		prometheus.MustRegister(AmountPaidOut)
		prometheus.MustRegister(ActiveSessions)
		prometheus.MustRegister(SessionsHalted)
	})
}

// Recorder turns session events into metric updates.
type Recorder struct{}

func (Recorder) HandleEvent(e game.Event) {
	switch e.Type {
	case game.EventWagerCommitted:
		if e.Wager != nil {
			AmountWagered.Add(e.Wager.Stake.InexactFloat64())
		}
	case game.EventCashedOut:
		if e.Wager != nil && e.Wager.Payout != nil {
			AmountPaidOut.Add(e.Wager.Payout.InexactFloat64())
		}
	case game.EventWagerSkipped, game.EventWagerCancelled:
		WagersResolved.WithLabelValues(string(game.WagerCancelled)).Inc()
	case game.EventRoundSettled:
		RoundsSettled.Inc()
		if e.Result == nil {
			return
		}
		CrashPoints.Observe(e.Result.CrashPoint.InexactFloat64())
		for _, w := range e.Result.Wagers {
			WagersResolved.WithLabelValues(string(w.State)).Inc()
		}
	case game.EventHalted:
		SessionsHalted.Inc()
	}
}

// Middleware counts requests by route pattern rather than raw path.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		HttpRequests.WithLabelValues(c.Method(), c.Route().Path, statusClass(status)).Inc()
		return err
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
