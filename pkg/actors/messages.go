package actors

import "github.com/uhyunpark/matchpipe/pkg/app/core"

// GatewayMsg is accepted by the gateway inbox: NewOrderMsg or ShutdownMsg.
type GatewayMsg interface{ gatewayMsg() }

// EngineMsg is accepted by the engine inbox: OrderMsg or ShutdownMsg.
type EngineMsg interface{ engineMsg() }

// AuditMsg is accepted by the audit inbox: TradeMsg, RejectedOrderMsg or ShutdownMsg.
type AuditMsg interface{ auditMsg() }

type NewOrderMsg struct {
	Order core.NewOrder
}

type OrderMsg struct {
	Order core.ValidatedOrder
}

type TradeMsg struct {
	Trade core.Trade
}

// RejectedOrderMsg notifies audit that a submission failed validation.
// Reason is informational; audit only counts these.
type RejectedOrderMsg struct {
	UserID int64
	Reason string
}

// ShutdownMsg is the in-band termination signal. It travels
// gateway -> engine -> audit behind any work queued before it.
type ShutdownMsg struct{}

func (NewOrderMsg) gatewayMsg()    {}
func (OrderMsg) engineMsg()        {}
func (TradeMsg) auditMsg()         {}
func (RejectedOrderMsg) auditMsg() {}

func (ShutdownMsg) gatewayMsg() {}
func (ShutdownMsg) engineMsg()  {}
func (ShutdownMsg) auditMsg()   {}
