package models

import "time"

// ExecutionStatus is the lifecycle state of a flow execution.
type ExecutionStatus string

const (
	ExecutionStatusTriggered ExecutionStatus = "triggered"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further event can resume the execution.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// WaitKind is the reason a running execution is suspended.
type WaitKind string

const (
	WaitChoice WaitKind = "choice" // button or quick reply tap
	WaitInput  WaitKind = "input"  // free text reply
	WaitDelay  WaitKind = "delay"  // sequence timer
)

// ChoiceKind tells the channel how to render a choice and the engine what a tap does.
type ChoiceKind string

const (
	ChoiceReply      ChoiceKind = "reply"
	ChoiceQuickReply ChoiceKind = "quick_reply"
	ChoiceURL        ChoiceKind = "url"
	ChoiceCall       ChoiceKind = "call"
	ChoiceStartFlow  ChoiceKind = "start_flow"
)

// Choice is a tappable option offered to a subscriber.
type Choice struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Kind   ChoiceKind `json:"kind"`
	URL    string     `json:"url,omitempty"`
	Phone  string     `json:"phone,omitempty"`
	FlowID string     `json:"flow_id,omitempty"`
	// NodeID is the button, quick reply or carousel item node behind the choice.
	NodeID string `json:"node_id,omitempty"`
	// Handle is the edge to follow when the choice continues the walk.
	Handle string `json:"handle,omitempty"`
}

// Suspension records what a running execution waits for.
type Suspension struct {
	Kind     WaitKind   `json:"kind"`
	NodeID   string     `json:"node_id"`
	Choices  []Choice   `json:"choices,omitempty"`
	ResumeAt *time.Time `json:"resume_at,omitempty"`
	// SaveAs is the variable an input reply is captured into.
	SaveAs string `json:"save_as,omitempty"`
	// Fallback is the node to continue with after a delay or a reply choice
	// that has no edge of its own.
	Fallback string `json:"fallback,omitempty"`
}

// ChoiceByID finds an offered choice.
func (s *Suspension) ChoiceByID(id string) (Choice, bool) {
	for _, choice := range s.Choices {
		if choice.ID == id {
			return choice, true
		}
	}

	return Choice{}, false
}

// FlowExecution is one run of a flow for one subscriber. It is persisted at
// every suspension point so any process can resume it.
type FlowExecution struct {
	ID                string            `json:"id"`
	FlowID            string            `json:"flow_id"`
	SubscriberID      string            `json:"subscriber_id"`
	Channel           string            `json:"channel"`
	Status            ExecutionStatus   `json:"status"`
	CurrentNodeID     string            `json:"current_node_id,omitempty"`
	Variables         map[string]string `json:"variables"`
	Wait              *Suspension       `json:"wait,omitempty"`
	ParentExecutionID string            `json:"parent_execution_id,omitempty"`
	ContinuedAs       string            `json:"continued_as,omitempty"`
	Error             string            `json:"error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// Waiting reports whether the execution is suspended on the given kind.
func (e *FlowExecution) Waiting(kind WaitKind) bool {
	return e.Status == ExecutionStatusRunning && e.Wait != nil && e.Wait.Kind == kind
}

// NodeStatus is the outcome of one node step.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusWaiting NodeStatus = "waiting"
	NodeStatusFailed  NodeStatus = "failed"
)

// NodeExecution is an audit row written for every node an execution visits.
type NodeExecution struct {
	ID          string            `json:"id"`
	ExecutionID string            `json:"execution_id"`
	FlowID      string            `json:"flow_id"`
	NodeID      string            `json:"node_id"`
	NodeType    NodeType          `json:"node_type"`
	Status      NodeStatus        `json:"status"`
	Error       string            `json:"error,omitempty"`
	Output      map[string]string `json:"output,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
