// Package engine interprets flows: it starts executions on trigger keywords,
// walks their nodes, suspends on taps, replies and delays, and resumes them
// when the matching event arrives.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/metrics"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps bounds the nodes walked for one event, so a cycle of
// non-suspending nodes fails instead of spinning.
const DefaultMaxSteps = 100

// Engine variables set on every execution.
const (
	VarSubscriberID = "subscriber_id"
	VarChannel      = "channel"
	VarLastMessage  = "last_message"
	VarLastChoice   = "last_choice"
	VarAIReply      = "ai_reply"
)

// Dependencies are the collaborators of an Engine. Persistence is required;
// every other field has a default or is only needed by the nodes that use it.
type Dependencies struct {
	Persistence persistence.Persistence
	Messenger   Messenger
	Catalog     Catalog
	Assistant   Assistant
	Publisher   eventbus.EventPublisher
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	Logger      *slog.Logger
	Clock       func() time.Time
	MaxSteps    int
}

type Engine struct {
	flows      persistence.FlowRepository
	executions persistence.ExecutionRepository
	messenger  Messenger
	catalog    Catalog
	assistant  Assistant
	publisher  eventbus.EventPublisher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	clock      func() time.Time
	maxSteps   int
	matcher    *TriggerMatcher
	locks      *keyedMutex
	validate   *validator.Validate
}

func New(deps Dependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "engine")

	e := &Engine{
		flows:      deps.Persistence.FlowRepository(),
		executions: deps.Persistence.ExecutionRepository(),
		messenger:  deps.Messenger,
		catalog:    deps.Catalog,
		assistant:  deps.Assistant,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		logger:     logger,
		clock:      deps.Clock,
		maxSteps:   deps.MaxSteps,
		matcher:    NewTriggerMatcher(logger),
		locks:      newKeyedMutex(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}

	if e.metrics == nil {
		e.metrics = metrics.New(prometheus.NewRegistry())
	}

	if e.tracer == nil {
		e.tracer = otelhelper.NewNoopTracer()
	}

	if e.clock == nil {
		e.clock = time.Now
	}

	if e.maxSteps <= 0 {
		e.maxSteps = DefaultMaxSteps
	}

	return e
}

// Outcome is how an inbound event was handled.
type Outcome string

const (
	OutcomeStarted  Outcome = "started"
	OutcomeCaptured Outcome = "captured"
	OutcomeTapped   Outcome = "tapped"
	OutcomeIgnored  Outcome = "ignored"
)

// Result reports the execution an inbound event started or resumed.
type Result struct {
	Outcome     Outcome                `json:"outcome"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Status      models.ExecutionStatus `json:"status,omitempty"`
}

func resultOf(outcome Outcome, execution *models.FlowExecution) Result {
	return Result{Outcome: outcome, ExecutionID: execution.ID, Status: execution.Status}
}

// HandleInbound routes one subscriber event. Text equal to a trigger keyword
// starts a new execution and abandons the subscriber's waiting ones, even an
// input waiting for a reply. Otherwise a waiting input captures the text;
// otherwise a partial trigger match starts a flow; otherwise text equal to an
// offered choice title counts as a tap. Events of one subscriber are handled
// one at a time.
func (e *Engine) HandleInbound(ctx context.Context, event models.InboundEvent) (Result, error) {
	if err := e.validate.Struct(event); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInbound, err)
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = e.clock()
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.inbound",
		attribute.String(otelhelper.SubscriberIDKey, event.SubscriberID),
		attribute.String(otelhelper.ChannelKey, event.Channel),
		attribute.String(otelhelper.EventTypeKey, string(event.Type)),
	)
	defer span.End()

	unlock := e.locks.Lock(event.SubscriberID)
	defer unlock()

	waiting, err := e.executions.FindWaitingBySubscriber(ctx, event.SubscriberID)
	if err != nil {
		otelhelper.SetError(span, err)

		return Result{}, fmt.Errorf("failed to load waiting executions: %w", err)
	}

	var result Result

	if event.Type == models.InboundTap {
		result, err = e.handleTap(ctx, event, waiting)
	} else {
		result, err = e.handleMessage(ctx, event, waiting)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return result, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, result.ExecutionID))
	e.metrics.InboundEvents.WithLabelValues(string(event.Type), string(result.Outcome)).Inc()

	return result, nil
}

func (e *Engine) handleTap(ctx context.Context, event models.InboundEvent, waiting []*models.FlowExecution) (Result, error) {
	for _, execution := range waiting {
		if event.ExecutionID != "" && execution.ID != event.ExecutionID {
			continue
		}

		if !execution.Waiting(models.WaitChoice) {
			continue
		}

		choice, ok := execution.Wait.ChoiceByID(event.ChoiceID)
		if !ok {
			continue
		}

		return e.applyChoice(ctx, execution, choice, event)
	}

	e.logger.DebugContext(ctx, "Ignoring tap without waiting execution",
		"subscriber_id", event.SubscriberID, "choice_id", event.ChoiceID)

	return Result{Outcome: OutcomeIgnored}, nil
}

func (e *Engine) handleMessage(ctx context.Context, event models.InboundEvent, waiting []*models.FlowExecution) (Result, error) {
	flows, err := e.flows.GetActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load active flows: %w", err)
	}

	match, matched := e.matcher.Match(event.Text, flows)

	if !matched || !match.Exact() {
		for _, execution := range waiting {
			if execution.Waiting(models.WaitInput) {
				return e.captureInput(ctx, execution, event)
			}
		}
	}

	if matched {
		e.logger.InfoContext(ctx, "Trigger matched",
			"flow_id", match.Flow.ID, "keyword", match.Keyword, "subscriber_id", event.SubscriberID)

		if err := e.abandon(ctx, waiting); err != nil {
			return Result{}, err
		}

		execution, err := e.newExecution(match.Flow, event.SubscriberID, event.Channel, "")
		if err != nil {
			return Result{}, err
		}

		execution.Variables[VarLastMessage] = event.Text

		if err := e.launch(ctx, match.Flow, execution); err != nil {
			return resultOf(OutcomeStarted, execution), err
		}

		return resultOf(OutcomeStarted, execution), nil
	}

	text := strings.TrimSpace(event.Text)

	for _, execution := range waiting {
		if !execution.Waiting(models.WaitChoice) {
			continue
		}

		for _, choice := range execution.Wait.Choices {
			if strings.EqualFold(strings.TrimSpace(choice.Title), text) {
				return e.applyChoice(ctx, execution, choice, event)
			}
		}
	}

	e.logger.DebugContext(ctx, "Ignoring message", "subscriber_id", event.SubscriberID)

	return Result{Outcome: OutcomeIgnored}, nil
}

// Start launches flowID for a subscriber outside of trigger matching. The
// flow must be active.
func (e *Engine) Start(ctx context.Context, flowID, subscriberID, channel string) (*models.FlowExecution, error) {
	unlock := e.locks.Lock(subscriberID)
	defer unlock()

	flow, err := e.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if !flow.Active {
		return nil, fmt.Errorf("flow %s: %w", flowID, ErrFlowInactive)
	}

	waiting, err := e.executions.FindWaitingBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to load waiting executions: %w", err)
	}

	if err := e.abandon(ctx, waiting); err != nil {
		return nil, err
	}

	execution, err := e.newExecution(flow, subscriberID, channel, "")
	if err != nil {
		return nil, err
	}

	return execution, e.launch(ctx, flow, execution)
}

// ResumeDue continues every execution whose delay elapsed at or before now
// and returns how many were resumed.
func (e *Engine) ResumeDue(ctx context.Context, now time.Time) (int, error) {
	due, err := e.executions.FindDueDelays(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to find due delays: %w", err)
	}

	resumed := 0

	for _, candidate := range due {
		ok, err := e.resumeDelay(ctx, candidate.SubscriberID, candidate.ID, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to resume delayed execution",
				"execution_id", candidate.ID, "error", err)

			continue
		}

		if ok {
			resumed++
		}
	}

	return resumed, nil
}

func (e *Engine) resumeDelay(ctx context.Context, subscriberID, executionID string, now time.Time) (bool, error) {
	unlock := e.locks.Lock(subscriberID)
	defer unlock()

	// The claim is what keeps two runtimes from resuming the same delay.
	execution, err := e.executions.ClaimDueDelay(ctx, executionID, now)
	if errors.Is(err, persistence.ErrExecutionNotDue) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	flow, err := e.resumeFlow(ctx, execution)
	if flow == nil {
		return false, err
	}

	e.auditNode(ctx, flow, execution, execution.Wait.NodeID, models.NodeStatusSuccess, nil, nil)

	next := execution.Wait.Fallback
	execution.Wait = nil

	return true, e.run(ctx, flow, execution, next)
}

func (e *Engine) captureInput(ctx context.Context, execution *models.FlowExecution, event models.InboundEvent) (Result, error) {
	flow, err := e.resumeFlow(ctx, execution)
	if flow == nil {
		return resultOf(OutcomeCaptured, execution), err
	}

	saveAs := execution.Wait.SaveAs
	execution.Variables[saveAs] = event.Text
	execution.Variables[VarLastMessage] = event.Text

	e.auditNode(ctx, flow, execution, execution.Wait.NodeID, models.NodeStatusSuccess, nil,
		map[string]string{saveAs: event.Text})

	next := execution.Wait.Fallback
	execution.Wait = nil

	if err := e.run(ctx, flow, execution, next); err != nil {
		return resultOf(OutcomeCaptured, execution), err
	}

	return resultOf(OutcomeCaptured, execution), nil
}

// applyChoice dispatches a tap. url and call choices only record the tap and
// keep the execution waiting; start_flow hands over to a new execution;
// replies continue the walk.
func (e *Engine) applyChoice(ctx context.Context, execution *models.FlowExecution, choice models.Choice, event models.InboundEvent) (Result, error) {
	flow, err := e.resumeFlow(ctx, execution)
	if flow == nil {
		return resultOf(OutcomeTapped, execution), err
	}

	execution.Variables[VarLastChoice] = choice.Title
	if event.Text != "" {
		execution.Variables[VarLastMessage] = event.Text
	}

	output := map[string]string{"choice_id": choice.ID, "action": string(choice.Kind)}

	switch choice.Kind {
	case models.ChoiceURL, models.ChoiceCall:
		output["target"] = choice.URL + choice.Phone
		e.auditNode(ctx, flow, execution, choice.NodeID, models.NodeStatusSuccess, nil, output)

		return resultOf(OutcomeTapped, execution), e.save(ctx, execution)
	case models.ChoiceStartFlow:
		e.auditNode(ctx, flow, execution, choice.NodeID, models.NodeStatusSuccess, nil, output)

		return resultOf(OutcomeTapped, execution), e.continueAs(ctx, execution, choice.FlowID)
	default:
		e.auditNode(ctx, flow, execution, choice.NodeID, models.NodeStatusSuccess, nil, output)

		next, ok := flow.Next(choice.NodeID, choice.Handle)
		if !ok {
			next = execution.Wait.Fallback
		}

		execution.Wait = nil

		return resultOf(OutcomeTapped, execution), e.run(ctx, flow, execution, next)
	}
}

// continueAs completes execution and starts flowID as its successor. A
// missing or inactive target fails execution instead.
func (e *Engine) continueAs(ctx context.Context, execution *models.FlowExecution, flowID string) error {
	nodeID := execution.CurrentNodeID
	if execution.Wait != nil {
		nodeID = execution.Wait.NodeID
	}

	target, err := e.flows.GetByID(ctx, flowID)
	if persistence.IsFlowNotFound(err) {
		return e.fail(ctx, execution, &StepError{NodeID: nodeID, Err: fmt.Errorf("start flow %s: %w", flowID, persistence.ErrFlowNotFound)})
	}

	if err != nil {
		return fmt.Errorf("failed to load flow %s: %w", flowID, err)
	}

	if !target.Active {
		return e.fail(ctx, execution, &StepError{NodeID: nodeID, Err: fmt.Errorf("start flow %s: %w", flowID, ErrFlowInactive)})
	}

	child, err := e.newExecution(target, execution.SubscriberID, execution.Channel, execution.ID)
	if err != nil {
		return e.fail(ctx, execution, &StepError{NodeID: nodeID, Err: fmt.Errorf("start flow %s: %w", flowID, err)})
	}

	if err := e.complete(ctx, execution, child.ID); err != nil {
		return err
	}

	return e.launch(ctx, target, child)
}

// resumeFlow loads the flow of a waiting execution. A nil flow means the
// execution was failed because its flow is gone.
func (e *Engine) resumeFlow(ctx context.Context, execution *models.FlowExecution) (*models.Flow, error) {
	if execution.Variables == nil {
		execution.Variables = make(map[string]string)
	}

	flow, err := e.flows.GetByID(ctx, execution.FlowID)
	if persistence.IsFlowNotFound(err) {
		return nil, e.fail(ctx, execution, &StepError{NodeID: execution.CurrentNodeID, Err: err})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load flow %s: %w", execution.FlowID, err)
	}

	return flow, nil
}

func (e *Engine) newExecution(flow *models.Flow, subscriberID, channel, parentID string) (*models.FlowExecution, error) {
	start, ok := flow.StartNode()
	if !ok {
		return nil, fmt.Errorf("flow %s: %w", flow.ID, ErrNoStartNode)
	}

	now := e.clock().UTC()

	variables := map[string]string{
		VarSubscriberID: subscriberID,
		VarChannel:      channel,
	}

	return &models.FlowExecution{
		ID:                uuid.New().String(),
		FlowID:            flow.ID,
		SubscriberID:      subscriberID,
		Channel:           channel,
		Status:            models.ExecutionStatusTriggered,
		CurrentNodeID:     start.ID,
		Variables:         variables,
		ParentExecutionID: parentID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// launch persists a triggered execution and walks it from its start node.
func (e *Engine) launch(ctx context.Context, flow *models.Flow, execution *models.FlowExecution) error {
	if err := e.save(ctx, execution); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Execution started",
		"execution_id", execution.ID, "flow_id", flow.ID, "subscriber_id", execution.SubscriberID)

	e.metrics.ExecutionsStarted.WithLabelValues(flow.ID).Inc()
	e.publish(ctx, execution.SubscriberID, &events.ExecutionStarted{
		BaseEvent:         events.NewBaseEvent(events.ExecutionStartedEvent, flow.ID),
		ExecutionID:       execution.ID,
		SubscriberID:      execution.SubscriberID,
		ParentExecutionID: execution.ParentExecutionID,
	})

	execution.Status = models.ExecutionStatusRunning

	return e.run(ctx, flow, execution, execution.CurrentNodeID)
}

// run walks from nodeID until the execution suspends, completes or fails.
// An empty nodeID completes the execution.
func (e *Engine) run(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, nodeID string) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run",
		attribute.String(otelhelper.FlowIDKey, flow.ID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
	)
	defer span.End()

	for steps := 0; nodeID != ""; steps++ {
		if steps >= e.maxSteps {
			return e.fail(ctx, execution, &StepError{NodeID: nodeID, Err: ErrStepLimit})
		}

		node, ok := flow.NodeByID(nodeID)
		if !ok {
			return e.fail(ctx, execution, &StepError{NodeID: nodeID, Err: ErrNodeNotFound})
		}

		execution.CurrentNodeID = node.ID

		outcome, err := e.executeNode(ctx, flow, execution, node)
		if err != nil {
			otelhelper.SetError(span, err)

			return e.fail(ctx, execution, &StepError{NodeID: node.ID, Err: err})
		}

		if outcome.wait != nil {
			execution.Wait = outcome.wait

			return e.save(ctx, execution)
		}

		nodeID = outcome.next
	}

	return e.complete(ctx, execution, "")
}

func (e *Engine) executeNode(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, node *models.Node) (stepOutcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	started := time.Now()
	outcome, err := e.step(ctx, flow, execution, node)

	status := models.NodeStatusSuccess

	switch {
	case err != nil:
		status = models.NodeStatusFailed

		otelhelper.SetError(span, err, attribute.String(otelhelper.ExecutionIDKey, execution.ID))
	case outcome.wait != nil:
		status = models.NodeStatusWaiting
	}

	e.metrics.NodeSteps.WithLabelValues(string(node.Type), string(status)).Inc()
	e.metrics.NodeDuration.WithLabelValues(string(node.Type)).Observe(time.Since(started).Seconds())
	e.auditNode(ctx, flow, execution, node.ID, status, err, outcome.output)

	return outcome, err
}

// abandon fails every waiting execution of a subscriber.
func (e *Engine) abandon(ctx context.Context, waiting []*models.FlowExecution) error {
	for _, execution := range waiting {
		if execution.Status.Terminal() {
			continue
		}

		if err := e.fail(ctx, execution, ErrAbandoned); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) complete(ctx context.Context, execution *models.FlowExecution, continuedAs string) error {
	now := e.clock().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.Wait = nil
	execution.ContinuedAs = continuedAs
	execution.CompletedAt = &now

	if saved, err := e.persist(ctx, execution); !saved {
		return err
	}

	e.logger.InfoContext(ctx, "Execution completed", "execution_id", execution.ID, "flow_id", execution.FlowID)
	e.metrics.ExecutionsFinished.WithLabelValues(execution.FlowID, string(execution.Status)).Inc()
	e.publish(ctx, execution.SubscriberID, &events.ExecutionCompleted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionCompletedEvent, execution.FlowID),
		ExecutionID:  execution.ID,
		SubscriberID: execution.SubscriberID,
		ContinuedAs:  continuedAs,
	})

	return nil
}

// fail marks execution failed with cause. It only returns an error when the
// failure could not be persisted.
func (e *Engine) fail(ctx context.Context, execution *models.FlowExecution, cause error) error {
	now := e.clock().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.Error = cause.Error()
	execution.Wait = nil
	execution.CompletedAt = &now

	if saved, err := e.persist(ctx, execution); !saved {
		return err
	}

	e.logger.WarnContext(ctx, "Execution failed",
		"execution_id", execution.ID, "flow_id", execution.FlowID, "error", cause)
	e.metrics.ExecutionsFinished.WithLabelValues(execution.FlowID, string(execution.Status)).Inc()
	e.publish(ctx, execution.SubscriberID, &events.ExecutionFailed{
		BaseEvent:    events.NewBaseEvent(events.ExecutionFailedEvent, execution.FlowID),
		ExecutionID:  execution.ID,
		SubscriberID: execution.SubscriberID,
		Error:        execution.Error,
	})

	return nil
}

func (e *Engine) save(ctx context.Context, execution *models.FlowExecution) error {
	_, err := e.persist(ctx, execution)

	return err
}

// persist saves execution and reports whether it was written. An execution
// another runtime already finished is left untouched.
func (e *Engine) persist(ctx context.Context, execution *models.FlowExecution) (bool, error) {
	err := e.executions.SaveExecution(ctx, execution)
	if errors.Is(err, persistence.ErrExecutionFinished) {
		e.logger.WarnContext(ctx, "Dropping update of finished execution",
			"execution_id", execution.ID, "status", execution.Status)

		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	return true, nil
}

// auditNode writes the audit row of a node visit. Audit failures are logged
// and never fail the execution.
func (e *Engine) auditNode(ctx context.Context, flow *models.Flow, execution *models.FlowExecution, nodeID string, status models.NodeStatus, cause error, output map[string]string) {
	var nodeType models.NodeType
	if node, ok := flow.NodeByID(nodeID); ok {
		nodeType = node.Type
	}

	record := &models.NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		FlowID:      flow.ID,
		NodeID:      nodeID,
		NodeType:    nodeType,
		Status:      status,
		Output:      output,
		CreatedAt:   e.clock().UTC(),
	}

	if cause != nil {
		record.Error = cause.Error()
	}

	if err := e.executions.RecordNodeExecution(ctx, record); err != nil {
		e.logger.ErrorContext(ctx, "Failed to record node execution",
			"execution_id", execution.ID, "node_id", nodeID, "error", err)
	}

	e.publish(ctx, execution.SubscriberID, &events.NodeExecuted{
		BaseEvent:   events.NewBaseEvent(events.NodeExecutedEvent, flow.ID),
		ExecutionID: execution.ID,
		NodeID:      nodeID,
		NodeType:    nodeType,
		Status:      status,
		Error:       record.Error,
	})
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
