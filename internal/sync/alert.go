package sync

import "fmt"

// AlertAction is the cache mutation an evaluation decides on.
type AlertAction string

const (
	// ActionSet inserts or overwrites the patient's alert flag.
	ActionSet AlertAction = "set"
	// ActionClear deletes the patient's alert flag. Clearing an absent
	// alert is a no-op success.
	ActionClear AlertAction = "clear"
)

// AlertDecision is the result of evaluating one vital-sign value.
type AlertDecision struct {
	PatientID string
	Action    AlertAction
	Message   string
}

// AlertKey returns the cache key holding a patient's alert flag.
func AlertKey(patientID string) string {
	return "alert:" + patientID
}

// ThresholdRule defines the inclusive normal range for one metric. Values
// outside [Low, High] raise an alert with MessageTemplate applied to the
// value.
type ThresholdRule struct {
	Low             float64
	High            float64
	MessageTemplate string
}

// RuleSet maps metric names to threshold rules.
type RuleSet map[string]ThresholdRule

// DefaultRules returns the built-in rule table. Heartbeat values of exactly
// 60 or 100 are non-alerting.
func DefaultRules() RuleSet {
	return RuleSet{
		"heartbeat": {
			Low:             60,
			High:            100,
			MessageTemplate: "Abnormal heartbeat detected: %.2f",
		},
	}
}

// Evaluator maps vital-sign values to alert decisions. Pure and
// deterministic: the same (metric, value) pair always yields the same
// decision.
type Evaluator struct {
	rules RuleSet
}

// NewEvaluator creates an evaluator over the given rule table. A nil rule
// set uses the defaults.
func NewEvaluator(rules RuleSet) *Evaluator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Evaluator{rules: rules}
}

// Evaluate decides the alert transition for one reading. Metrics without a
// rule never alert.
func (e *Evaluator) Evaluate(patientID, metric string, value float64) AlertDecision {
	rule, ok := e.rules[metric]
	if !ok {
		return AlertDecision{PatientID: patientID, Action: ActionClear}
	}
	if value < rule.Low || value > rule.High {
		return AlertDecision{
			PatientID: patientID,
			Action:    ActionSet,
			Message:   fmt.Sprintf(rule.MessageTemplate, value),
		}
	}
	return AlertDecision{PatientID: patientID, Action: ActionClear}
}
