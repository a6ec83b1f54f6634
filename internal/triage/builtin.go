package triage

func f(v float64) *float64 { return &v }

// BuiltinRules returns the default triage rule set loaded at startup.
// Operators replace or extend these through the rules API; with no
// persistent store, rules created at runtime live for the process.
func BuiltinRules() []*Rule {
	return []*Rule{
		{
			ID:          "triage-score",
			Name:        "Suspicion score banding",
			Description: "Routes findings by raw suspicion score",
			Expression:  "score",
			Enabled:     true,
			Weight:      1.0,
			Bands: []Band{
				{LowerLimit: f(0.85), Outcome: OutcomeEscalate, Reason: "suspicion score 0.85 or above"},
				{LowerLimit: f(0.6), UpperLimit: f(0.85), Outcome: OutcomeReview, Reason: "suspicion score in review band"},
				{LowerLimit: f(0), UpperLimit: f(0.6), Outcome: OutcomeIgnore, Reason: "suspicion score below review band"},
			},
		},
		{
			ID:          "triage-large-cycle",
			Name:        "Large laundering loop",
			Description: "Escalates cycles moving significant volume",
			Expression:  `kind == "cycle" && total_amount >= 50000.0`,
			Enabled:     true,
			Weight:      1.5,
			Bands: []Band{
				{LowerLimit: f(1), Outcome: OutcomeEscalate, Reason: "cycle total amount 50k or above"},
				{UpperLimit: f(1), Outcome: OutcomeIgnore, Reason: "not a large cycle"},
			},
		},
		{
			ID:          "triage-sender-swarm",
			Name:        "Smurfing sender swarm",
			Description: "Escalates fan-in patterns with many distinct senders",
			Expression:  `kind == "smurfing" && distinct_senders >= 8`,
			Enabled:     true,
			Weight:      1.2,
			Bands: []Band{
				{LowerLimit: f(1), Outcome: OutcomeEscalate, Reason: "eight or more distinct senders"},
				{UpperLimit: f(1), Outcome: OutcomeIgnore, Reason: "sender count below swarm size"},
			},
		},
	}
}
