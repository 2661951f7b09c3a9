package bus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// Subjects emitted and consumed by the adaptation service.
const (
	SubjectTriggerCreated        = "trigger.created"
	SubjectTriggerResolved       = "trigger.resolved"
	SubjectReviewCreated         = "review.created"
	SubjectRecommendationCreated = "recommendation.created"
	SubjectRecommendationApplied = "recommendation.applied"
	SubjectRecommendationFailed  = "recommendation.failed"
)

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(subject, data)
}

type Subscriber struct {
	Conn *nats.Conn
}

func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{Conn: conn}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		s.Conn.Drain()
		s.Conn.Close()
	}
}

// Subscribe decodes each message as JSON into a fresh T before
// handing it to the handler. Malformed payloads are dropped.
func Subscribe[T any](s *Subscriber, subject string, handler func(T)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		var evt T
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return
		}
		handler(evt)
	})
}

// Event payloads. Only identifiers ride the bus; consumers fetch the
// current record so late deliveries never carry stale state.

type TriggerEvent struct {
	EventID     string `json:"event_id"`
	RuleID      string `json:"rule_id"`
	ParameterID string `json:"parameter_id"`
	Severity    string `json:"severity"`
}

type ReviewEvent struct {
	ReviewID string `json:"review_id"`
	SystemID string `json:"system_id"`
	Type     string `json:"type"`
}

type RecommendationEvent struct {
	RecommendationID string `json:"recommendation_id"`
	StrategyID       string `json:"strategy_id"`
	Action           string `json:"action"`
	AutoApply        bool   `json:"auto_apply"`
}
