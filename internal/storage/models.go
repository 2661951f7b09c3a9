package storage

import "time"

type ParameterRecord struct {
	ID          string
	SystemID    string
	Name        string
	Unit        string
	NormalMin   float64
	NormalMax   float64
	CriticalMin float64
	CriticalMax float64
	CreatedAt   time.Time
}

type TriggerRuleRecord struct {
	ID             string
	ParameterID    string
	Name           string
	Condition      string
	Threshold      float64
	EvalWindowMin  int
	MinDurationMin int
	RecoveryMin    int
	Severity       string
	TriggerType    string
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type TriggerEventRecord struct {
	ID             string
	RuleID         string
	ParameterID    string
	SystemID       string
	State          string
	Severity       string
	TriggerType    string
	TriggerValue   float64
	LastValue      float64
	LimitExpr      string
	FirstBreachAt  time.Time
	LastSeenAt     time.Time
	AcknowledgedBy string
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type TriggerEventFilter struct {
	State    string
	Severity string
	SystemID string
}

type ReviewRecord struct {
	ID             string
	SystemID       string
	Type           string
	Status         string
	ApprovalStatus string
	TriggerEventID *string
	Leader         string
	DecidedBy      string
	DecisionNote   string
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

type ReviewFilter struct {
	SystemID string
	Status   string
}

type FailureModeRecord struct {
	ID          string
	SystemID    string
	Name        string
	StrategyID  string
	EquipmentID string
	Severity    int
	Occurrence  int
	Detection   int
	BaselineRPN int
	CreatedAt   time.Time
}

type AssessmentRecord struct {
	ID            string
	ReviewID      string
	FailureModeID string
	Severity      int
	Occurrence    int
	Detection     int
	RPN           int
	ScoreChanged  bool
	Justification string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type RecommendationRecord struct {
	ID          string
	ReviewID    *string
	TriggerID   *string
	OriginKey   string
	StrategyID  string
	EquipmentID string
	Action      string
	Magnitude   *float64
	Urgency     string
	AutoApply   bool
	Status      string
	LastError   string
	AppliedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RecommendationFilter struct {
	Status   string
	ReviewID string
}
