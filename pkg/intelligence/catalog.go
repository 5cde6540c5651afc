package intelligence

// DriftScenario is a canned adversarial drift illustration.
type DriftScenario struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Vector     string `json:"vector"`
	Severity   string `json:"severity"`
	Detected   bool   `json:"detected"`
	Mitigation string `json:"mitigation"`
}

// Experiment is a canned improvement proposal.
type Experiment struct {
	ID           string  `json:"id"`
	Hypothesis   string  `json:"hypothesis"`
	Metric       string  `json:"metric"`
	Status       string  `json:"status"`
	ExpectedLift float64 `json:"expected_lift"`
}

var driftScenarios = []DriftScenario{
	{ID: "drift-01", Name: "Invoice prompt injection", Vector: "tool output", Severity: "high", Detected: true, Mitigation: "Tool output quarantined before planning"},
	{ID: "drift-02", Name: "Counterparty name spoofing", Vector: "bank feed", Severity: "critical", Detected: true, Mitigation: "Dual signature required above threshold"},
	{ID: "drift-03", Name: "KPI definition creep", Vector: "document corpus", Severity: "medium", Detected: false, Mitigation: "Quarterly schema review"},
	{ID: "drift-04", Name: "Distribution list poisoning", Vector: "directory sync", Severity: "high", Detected: true, Mitigation: "Recipients pinned to board roster domain"},
}

var experiments = []Experiment{
	{ID: "exp-01", Hypothesis: "Raising materiality to $2,500 cuts false findings without missing recoveries", Metric: "false_finding_rate", Status: "running", ExpectedLift: 0.18},
	{ID: "exp-02", Hypothesis: "Counterparty history shortens wire review time", Metric: "approval_latency_p50", Status: "proposed", ExpectedLift: 0.31},
	{ID: "exp-03", Hypothesis: "Section templates reduce briefing redaction misses", Metric: "redaction_recall", Status: "completed", ExpectedLift: 0.07},
	{ID: "exp-04", Hypothesis: "Shadow mode for two weeks before REAL connectors", Metric: "escalation_precision", Status: "proposed", ExpectedLift: 0.12},
}

// DriftScenarios returns a fresh copy of the drift scenario catalog.
func DriftScenarios() []DriftScenario {
	return append([]DriftScenario(nil), driftScenarios...)
}

// Experiments returns a fresh copy of the experiment catalog.
func Experiments() []Experiment {
	return append([]Experiment(nil), experiments...)
}
