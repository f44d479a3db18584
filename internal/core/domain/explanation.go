package domain

// Explanation is a conjunction of predicates that is over-represented in the
// test relation, with the group sizes it was scored on.
type Explanation struct {
	Predicates   []Predicate `json:"predicates"`
	RiskRatio    float64     `json:"risk_ratio"`
	TestCount    int64       `json:"test_count"`
	ControlCount int64       `json:"control_count"`
}

func (e Explanation) String() string {
	return Conjunction(e.Predicates)
}
