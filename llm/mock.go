package llm

import (
	"context"
	"sync"

	"github.com/juju/errors"
)

var (
	_ Completer = &Mock{}
)

// agent names, also the keys of the mock answers
const (
	AgentClassifier = "event_classifier"
	AgentIEA        = "iea_analyzer"
	AgentSentiment  = "sentiment_scorer"
	AgentCausal     = "causal_validator"
	AgentDaily      = "daily_summary"
)

var cannedAnswers = map[string]string{
	AgentClassifier: `{"event_type": "geopolitical", "keywords": ["Saudi Arabia", "oil production", "cut", "1 million barrels", "per day"], "is_oil_related": true}`,
	AgentIEA: `{"reason": "supply", "key_entities": ["Saudi Arabia", "OPEC", "OPEC+", "EIA"], ` +
		`"quantitative_metrics": {"supply_impact": "-1000000", "demand_impact": null, "inventory_change": null, "other_metrics": {}}, ` +
		`"transmission_path": "Saudi Arabia cuts 1m bpd -> global crude supply shrinks -> oil price rises", ` +
		`"confidence": "high", "uncertainties": ["cut compliance", "reaction of other OPEC+ members"]}`,
	AgentSentiment: `{"sentiment": 0.8, "intensity": 0.85, "confidence": 0.9, "reasoning": {` +
		`"event_type": "supply shock", "sentiment_basis": "a 1m bpd cut removes a large share of global supply", ` +
		`"intensity_basis": "large cut with high market attention", "historical_reference": "the 2023 Saudi cuts", ` +
		`"cross_validation": "supply and demand views agree"}}`,
	AgentCausal: `{"is_causal": true, "adjusted_intensity": 0.8, "logic_analysis": {"transmission_path_valid": true, ` +
		`"path_issues": [], "confounding_variables": ["output changes of other OPEC+ members", "global growth expectations"], ` +
		`"historical_consistency": "matches earlier production cuts", "counterfactual_analysis": "without the cut prices would likely fall"}, ` +
		`"confidence": 0.85, "warning": "cut compliance is uncertain", "calibration_reasoning": "calibrated against earlier cuts"}`,
	AgentDaily: `{"market_overview": "Supply cuts led by Saudi Arabia dominate the week and keep the market tight.", ` +
		`"short_term_risk": {"assessment": "upside pressure on prices", "forecast": "Brent firms over the next week", ` +
		`"risk_factors": ["cut compliance", "inventory draws"], "risk_level": "high", "confidence": 0.8, ` +
		`"key_metrics": {"sentiment_average": 0.8, "intensity_average": 0.85, "market_volatility": "elevated"}}, ` +
		`"long_term_risk": {"assessment": "balance depends on OPEC+ discipline", "forecast": "range bound with an upward bias", ` +
		`"risk_factors": ["demand slowdown"], "risk_level": "medium", "confidence": 0.6, ` +
		`"key_metrics": {"trend_strength": "moderate", "fundamental_balance": "tight", "geopolitical_stability": "fragile"}}, ` +
		`"key_events": [{"id": "1", "title": "Saudi extends output cut", "reason": "largest single supply change", ` +
		`"potential_impact": "removes 1m bpd from the market", "suggested_action": "watch export data", ` +
		`"monitoring_metrics": ["Saudi exports", "official selling prices"]}], ` +
		`"event_correlation": "the cut and the OPEC+ meeting reinforce each other", ` +
		`"risk_mitigation": "hedge near term exposure", ` +
		`"oil_price_strategies": {"short_term": "hedge the next quarter", "long_term": "diversify supply contracts", ` +
		`"by_stakeholder": {"producers": "lock in forward sales", "consumers": "extend hedges", ` +
		`"investors": "favour long exposure", "policymakers": "review strategic reserves"}, ` +
		`"monitoring_system": "daily inventory and export tracking"}}`,
}

/**
 * Mock is the offline completer used when no API key is configured. It
 * answers every agent with a fixed JSON document; tests can replace the
 * answer of an agent with Answer or make it fail with Fail.
 */
type Mock struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   map[string]int
}

func NewMock() *Mock {
	answers := make(map[string]string, len(cannedAnswers))
	for agent, answer := range cannedAnswers {
		answers[agent] = answer
	}
	return &Mock{
		answers: answers,
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (m *Mock) Answer(agent, text string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[agent] = text
	delete(m.errs, agent)
	return m
}

func (m *Mock) Fail(agent string, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[agent] = err
	return m
}

func (m *Mock) Calls(agent string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[agent]
}

func (m *Mock) Complete(ctx context.Context, req *Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[req.Agent]++
	if err := m.errs[req.Agent]; err != nil {
		return "", err
	}
	if answer, exists := m.answers[req.Agent]; exists {
		return answer, nil
	}
	return "", errors.NotFoundf("mock answer for agent %q", req.Agent)
}
