package workflow

import "time"

// ToolSpec describes a simulated tool call emitted by a transition.
type ToolSpec struct {
	Tool   string
	Args   map[string]any
	Result string
}

// Transition describes, as data, everything that happens when a workflow
// leaves one step.
type Transition struct {
	To         Step
	Patch      map[string]any
	Gates      []string
	Tools      []ToolSpec
	Narration  string
	Avatar     Avatar
	ShowAttack bool
	Mint       bool
}

// Profile is the static description of one workflow.
type Profile struct {
	ID               ID
	Title            string
	CapabilityID     string
	CostCents        int
	Summary          string
	RequiresApproval bool
	InitialData      map[string]any
	// Transitions is keyed by the step being left.
	Transitions map[Step]Transition
	// Approval is applied by approve while the workflow waits in Approval.
	Approval *Transition
}

// continuation is an automatic follow-up transition scheduled by the owner
// of the workflow state.
type continuation struct {
	to    Step
	delay time.Duration
}

var autoChains = map[Step]continuation{
	Approved: {to: ReceiptStep, delay: 1500 * time.Millisecond},
}

// AutoChain reports the continuation registered for entering step. The
// caller owns the timer and must re-check that the workflow is still at
// step before advancing.
func AutoChain(step Step) (to Step, delay time.Duration, ok bool) {
	c, ok := autoChains[step]
	if !ok {
		return step, 0, false
	}
	return c.to, c.delay, true
}

// Rules returns the CEL source of every gate rule, keyed by rule name.
func Rules() map[string]string {
	return map[string]string{
		"revenue.read_scope":           `"billing.read" in data.scopes ? "PASS" : "DENY"`,
		"revenue.findings_threshold":   `data.leak_cents > data.materiality_cents ? "PASS" : "ESCALATE"`,
		"revenue.auto_remediate_limit": `data.leak_cents <= data.auto_remediate_limit_cents ? "PASS" : "ESCALATE"`,
		"revenue.credit_memo_write":    `"billing.write" in data.scopes ? "PASS" : "DENY"`,

		"wire_transfer.read_scope":       `"treasury.read" in data.scopes ? "PASS" : "DENY"`,
		"wire_transfer.amount_threshold": `data.amount_cents > data.threshold_cents ? "ESCALATE" : "PASS"`,
		"wire_transfer.single_signature": `size(data.signatures) < 2 ? "DENY" : "PASS"`,
		"wire_transfer.dual_signature":   `size(data.signatures) >= 2 && "cfo" in data.signatures ? "PASS" : "DENY"`,
		"wire_transfer.release":          `settings.shadow_mode ? "ESCALATE" : "PASS"`,

		"board.data_classification": `data.classification == "restricted" ? "ESCALATE" : "PASS"`,
		"board.redaction_check":     `data.redacted_fields >= size(data.pii_fields) ? "PASS" : "DENY"`,
		"board.distribution_list":   `data.recipients.all(r, r.endsWith("@board.sita.example")) ? "PASS" : "DENY"`,
	}
}

var profiles = map[ID]Profile{
	RevenueLeak: {
		ID:           RevenueLeak,
		Title:        "Revenue leak recovery",
		CapabilityID: "cap.revenue.reconcile",
		CostCents:    8,
		Summary:      "Recovered $48,200 of unbilled usage across 37 accounts",
		InitialData: map[string]any{
			"scopes":                     []string{"billing.read", "billing.write"},
			"period":                     "2025-Q4",
			"leak_cents":                 4820000,
			"materiality_cents":          100000,
			"auto_remediate_limit_cents": 5000000,
			"accounts":                   37,
		},
		Transitions: map[Step]Transition{
			Idle: {
				To:        Scanning,
				Gates:     []string{"revenue.read_scope"},
				Tools:     []ToolSpec{{Tool: "billing.scan_invoices", Args: map[string]any{"period": "2025-Q4"}, Result: "1,284 invoices scanned"}},
				Narration: "Scanning Q4 invoices against metered usage.",
				Avatar:    AvatarThinking,
			},
			Scanning: {
				To:        Findings,
				Gates:     []string{"revenue.findings_threshold"},
				Tools:     []ToolSpec{{Tool: "ledger.diff_usage", Args: map[string]any{"accounts": 37}, Result: "$48,200 unbilled usage found"}},
				Narration: "Found $48,200 of usage that never reached an invoice.",
				Avatar:    AvatarSpeaking,
			},
			Findings: {
				To:        Approved,
				Gates:     []string{"revenue.auto_remediate_limit"},
				Narration: "Within the auto-remediation limit. No human sign-off needed.",
				Avatar:    AvatarSpeaking,
			},
			Approved: {
				To:        ReceiptStep,
				Gates:     []string{"revenue.credit_memo_write"},
				Tools:     []ToolSpec{{Tool: "billing.issue_invoices", Args: map[string]any{"count": 37}, Result: "37 corrective invoices issued"}},
				Narration: "Corrective invoices issued. Receipt minted.",
				Avatar:    AvatarSuccess,
				Mint:      true,
			},
		},
	},
	WireTransfer: {
		ID:               WireTransfer,
		Title:            "Wire transfer release",
		CapabilityID:     "cap.treasury.wire_release",
		CostCents:        3,
		Summary:          "Released $12.5M wire to Halvorsen Maritime AS under dual signature",
		RequiresApproval: true,
		InitialData: map[string]any{
			"scopes":          []string{"treasury.read", "treasury.release"},
			"amount_cents":    1250000000,
			"threshold_cents": 500000000,
			"counterparty":    "Halvorsen Maritime AS",
			"risk_score":      71,
			"signatures":      []string{"treasury-bot"},
		},
		Transitions: map[Step]Transition{
			Idle: {
				To:        Scanning,
				Gates:     []string{"wire_transfer.read_scope"},
				Tools:     []ToolSpec{{Tool: "bank.fetch_pending_wires", Args: map[string]any{"account": "ops-usd-01"}, Result: "1 pending wire"}},
				Narration: "Pulling pending wires from the operating account.",
				Avatar:    AvatarThinking,
			},
			Scanning: {
				To:        Findings,
				Gates:     []string{"wire_transfer.amount_threshold"},
				Tools:     []ToolSpec{{Tool: "risk.score_counterparty", Args: map[string]any{"counterparty": "Halvorsen Maritime AS"}, Result: "risk score 71"}},
				Narration: "$12.5M exceeds the $5M threshold. Escalating.",
				Avatar:    AvatarAlert,
			},
			Findings: {
				To:         Approval,
				Gates:      []string{"wire_transfer.single_signature"},
				Narration:  "Release blocked: only one signature present. Waiting for the CFO.",
				Avatar:     AvatarAlert,
				ShowAttack: true,
			},
			Approved: {
				To:        ReceiptStep,
				Gates:     []string{"wire_transfer.release"},
				Tools:     []ToolSpec{{Tool: "bank.release_wire", Args: map[string]any{"amount_cents": 1250000000}, Result: "wire released"}},
				Narration: "Wire released under dual signature. Receipt minted.",
				Avatar:    AvatarSuccess,
				Mint:      true,
			},
		},
		Approval: &Transition{
			To:        Approved,
			Patch:     map[string]any{"signatures": []string{"treasury-bot", "cfo"}},
			Gates:     []string{"wire_transfer.dual_signature"},
			Narration: "CFO signature received. Dual control satisfied.",
			Avatar:    AvatarSpeaking,
		},
	},
	BoardBriefing: {
		ID:           BoardBriefing,
		Title:        "Board briefing",
		CapabilityID: "cap.board.briefing",
		CostCents:    5,
		Summary:      "Drafted and distributed the Q4 board briefing to 6 directors",
		InitialData: map[string]any{
			"classification":  "internal",
			"pii_fields":      []string{"salary_bands", "personal_emails"},
			"redacted_fields": 2,
			"recipients": []string{
				"chair@board.sita.example",
				"audit@board.sita.example",
				"risk@board.sita.example",
				"comp@board.sita.example",
				"ceo@board.sita.example",
				"independent@board.sita.example",
			},
		},
		Transitions: map[Step]Transition{
			Idle: {
				To:        Scanning,
				Gates:     []string{"board.data_classification"},
				Tools:     []ToolSpec{{Tool: "docs.collect_kpis", Args: map[string]any{"quarter": "Q4"}, Result: "14 KPIs collected"}},
				Narration: "Collecting Q4 KPIs for the board pack.",
				Avatar:    AvatarThinking,
			},
			Scanning: {
				To:        Findings,
				Gates:     []string{"board.redaction_check"},
				Tools:     []ToolSpec{{Tool: "llm.draft_briefing", Args: map[string]any{"sections": 5}, Result: "5-section draft"}},
				Narration: "Draft ready. Personal data redacted.",
				Avatar:    AvatarSpeaking,
			},
			Findings: {
				To:        Approved,
				Gates:     []string{"board.distribution_list"},
				Narration: "Distribution list verified against the board roster.",
				Avatar:    AvatarSpeaking,
			},
			Approved: {
				To:        ReceiptStep,
				Tools:     []ToolSpec{{Tool: "mail.send_briefing", Args: map[string]any{"recipients": 6}, Result: "sent to 6 directors"}},
				Narration: "Briefing delivered. Receipt minted.",
				Avatar:    AvatarSuccess,
				Mint:      true,
			},
		},
	},
}

// Lookup returns the profile of a workflow.
func Lookup(id ID) (Profile, bool) {
	p, ok := profiles[id]
	return p, ok
}
