package schemas

import (
	"encoding/json"
	"strings"
)

// -- Bank Identity --

// Bank is the closed identifier for a supported financial institution.
// Raw request labels (names, numeric institution codes) are resolved to a
// Bank exactly once at the request boundary; everything downstream switches
// on the enum, never on raw strings.
type Bank string

const (
	BankCaixa Bank = "caixa"
	BankBB    Bank = "bb"
)

// bankCodes maps the numeric institution codes used by the backend.
var bankCodes = map[string]Bank{
	"104": BankCaixa,
	"1":   BankBB,
}

// ResolveBank normalizes a raw target label to a Bank. Unrecognized labels
// pass through lowercased so the payload still carries a stable identifier.
func ResolveBank(raw string) Bank {
	label := strings.ToLower(strings.TrimSpace(raw))
	if b, ok := bankCodes[label]; ok {
		return b
	}
	switch {
	case strings.Contains(label, "caixa"):
		return BankCaixa
	case label == "bb" || strings.Contains(label, "banco do brasil"):
		return BankBB
	}
	return Bank(label)
}

// -- Request / Response Schemas --

// Inbound request and message actions.
const (
	ActionStartSimulation  = "startSimulationRequest"
	ActionSimulationResult = "simulationResult"
)

// SimulationInput is the raw, untyped request for one bank target. No shape
// is enforced before the fields builder runs.
type SimulationInput map[string]any

// Target returns the raw bank label of the input, if present.
func (in SimulationInput) Target() string {
	for _, key := range []string{"target", "if", "banco"} {
		if v, ok := in[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// SimulationRequest is the inbound envelope handled by the orchestrator.
type SimulationRequest struct {
	Action string      `json:"action"`
	Data   RequestData `json:"data"`
}

// RequestData carries one SimulationInput per requested bank target.
type RequestData struct {
	Targets []SimulationInput `json:"targets"`
}

// BatchStatus classifies a whole multi-target run.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchPartial BatchStatus = "partial"
	BatchError   BatchStatus = "error"
)

// TargetOutcome is the settled result for one bank target.
type TargetOutcome struct {
	Target string          `json:"target"`
	Result json.RawMessage `json:"result,omitempty"`
	Errors []string        `json:"errors,omitempty"`
}

// Failed reports whether the outcome carries validation or run errors.
func (o TargetOutcome) Failed() bool { return len(o.Errors) > 0 }

// SimulationResponse is the aggregate answer to a SimulationRequest.
type SimulationResponse struct {
	Status  BatchStatus     `json:"status"`
	Count   int             `json:"count"`
	Results []TargetOutcome `json:"results"`
}

// -- Messenger Envelopes --

// Message types for the engine <-> orchestrator bridge.
const (
	MsgTypeResult = "CAIXA_TO_BACKGROUND"
	MsgTypeAck    = "BACKGROUND_TO_CAIXA"
)

// ResultMessage carries a finished payload from an automation engine to the
// orchestrator, correlated by RequestID.
type ResultMessage struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId"`
	Payload   ResultDetail `json:"payload"`
}

// ResultDetail is the inner body of a ResultMessage.
type ResultDetail struct {
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"requestId"`
}

// AckMessage confirms receipt of a ResultMessage.
type AckMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Receipt is what a Send resolves to: confirmation is advisory, never an
// error. An unconfirmed receipt only means the ack timed out.
type Receipt struct {
	RequestID string `json:"requestId"`
	Confirmed bool   `json:"confirmed"`
}

// -- Automation Run State --

// FillStatus records the outcome of filling a single form field.
type FillStatus string

const (
	FillFilled      FillStatus = "filled"
	FillFailed      FillStatus = "failed"
	FillMissingData FillStatus = "missing-data"
)
