package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"pointchain/core/events"
	"pointchain/native/ledger"
)

// Ledger groups the operation counters exported by the node.
type Ledger struct {
	Purchases         prometheus.Counter
	PaymentsOpened    prometheus.Counter
	PaymentsClosed    prometheus.Counter
	LinksAccepted     prometheus.Counter
	BridgeDeposits    prometheus.Counter
	BridgeWithdrawals prometheus.Counter
}

// NewLedger creates and registers the ledger counters on the given registry.
func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		Purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pointchain", Name: "purchases_total",
			Help: "Purchases recorded by the ledger.",
		}),
		PaymentsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pointchain", Name: "payments_opened_total",
			Help: "Loyalty payments opened.",
		}),
		PaymentsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pointchain", Name: "payments_closed_total",
			Help: "Loyalty payments closed, confirmed or rejected.",
		}),
		LinksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pointchain", Name: "links_accepted_total",
			Help: "Identity link requests accepted by validator quorum.",
		}),
		BridgeDeposits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pointchain", Name: "bridge_deposits_total",
			Help: "Bridge deposits locked.",
		}),
		BridgeWithdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pointchain", Name: "bridge_withdrawals_total",
			Help: "Bridge withdrawals released.",
		}),
	}
	reg.MustRegister(
		m.Purchases, m.PaymentsOpened, m.PaymentsClosed,
		m.LinksAccepted, m.BridgeDeposits, m.BridgeWithdrawals,
	)
	return m
}

// Emitter counts ledger events as they are emitted and forwards them to the
// wrapped emitter, so metrics piggyback on the existing event plumbing.
type Emitter struct {
	next     events.Emitter
	counters *Ledger
}

// NewEmitter wraps next with operation counting. A nil next discards events.
func NewEmitter(next events.Emitter, counters *Ledger) *Emitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &Emitter{next: next, counters: counters}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e.counters != nil {
		switch evt.EventType() {
		case events.TypeSavedPurchase:
			e.counters.Purchases.Inc()
		case events.TypeLoyaltyPayment:
			if payment, ok := evt.(events.LoyaltyPayment); ok {
				switch ledger.PaymentStatus(payment.Status) {
				case ledger.PaymentOpened:
					e.counters.PaymentsOpened.Inc()
				case ledger.PaymentClosed, ledger.PaymentRejected:
					e.counters.PaymentsClosed.Inc()
				}
			}
		case events.TypeLinkRequestAccepted:
			e.counters.LinksAccepted.Inc()
		case events.TypeBridgeDeposited:
			e.counters.BridgeDeposits.Inc()
		case events.TypeBridgeWithdrawn:
			e.counters.BridgeWithdrawals.Inc()
		}
	}
	e.next.Emit(evt)
}
