package workflow

import (
	"context"
	"fmt"
	"slices"

	"dario.cat/mergo"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/validation"
)

// WorkflowFilter selects workflows in ListWorkflows. Tags match when the workflow has
// any of them.
type WorkflowFilter struct {
	Status   models.WorkflowStatus
	Category string
	Author   string
	Tags     []string
	Offset   int
	Limit    int
}

func (f WorkflowFilter) matches(w *models.Workflow) bool {
	if f.Status != "" && w.Status != f.Status {
		return false
	}

	if f.Category != "" && w.Metadata.Category != f.Category {
		return false
	}

	if f.Author != "" && w.Metadata.Author != f.Author {
		return false
	}

	if len(f.Tags) > 0 && !w.HasAnyTag(f.Tags) {
		return false
	}

	return true
}

// CreateWorkflow validates and stores a new workflow as a draft unless a status is set.
func (e *Engine) CreateWorkflow(ctx context.Context, def *models.Workflow) (*models.Workflow, error) {
	if def == nil {
		return nil, &ValidationError{Op: "CreateWorkflow", Problems: []string{"workflow is required"}}
	}

	wf := def.Clone()
	now := e.clock.Now()
	wf.ID = newID()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if wf.Status == "" {
		wf.Status = models.WorkflowStatusDraft
	}

	if wf.Settings.ErrorHandling == "" {
		wf.Settings.ErrorHandling = models.ErrorHandlingStop
	}

	if problems := e.validateWorkflow(wf); len(problems) > 0 {
		return nil, &ValidationError{Op: "CreateWorkflow", Problems: problems}
	}

	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.workflowOrder = append(e.workflowOrder, wf.ID)
	stored := wf.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Workflow created", "workflow_id", wf.ID, "nodes", len(wf.Nodes))
	e.emit(ctx, events.WorkflowCreated, wf.ID, stored.Clone())

	return stored, nil
}

// UpdateWorkflow merges the non-zero fields of patch over the stored workflow. Node,
// connection and variable lists in the patch replace the stored ones.
func (e *Engine) UpdateWorkflow(ctx context.Context, id string, patch *models.Workflow) (*models.Workflow, error) {
	e.mu.Lock()
	existing, ok := e.workflows[id]
	if !ok {
		e.mu.Unlock()

		return nil, notFound(ErrWorkflowNotFound, id)
	}

	merged := existing.Clone()
	e.mu.Unlock()

	if patch != nil {
		if err := mergo.Merge(merged, patch.Clone(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge workflow %s: %w", id, err)
		}
	}

	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt
	merged.UpdatedAt = e.clock.Now()

	if problems := e.validateWorkflow(merged); len(problems) > 0 {
		return nil, &ValidationError{Op: "UpdateWorkflow", Problems: problems}
	}

	e.mu.Lock()
	if _, ok := e.workflows[id]; !ok {
		e.mu.Unlock()

		return nil, notFound(ErrWorkflowNotFound, id)
	}

	e.workflows[id] = merged
	stored := merged.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Workflow updated", "workflow_id", id)
	e.emit(ctx, events.WorkflowUpdated, id, stored.Clone())

	return stored, nil
}

// DeleteWorkflow removes a workflow. It fails while one of its executions is running or
// paused.
// Execution records are kept.
func (e *Engine) DeleteWorkflow(ctx context.Context, id string) error {
	e.mu.Lock()

	wf, ok := e.workflows[id]
	if !ok {
		e.mu.Unlock()

		return notFound(ErrWorkflowNotFound, id)
	}

	if e.activeCountLocked(id) > 0 {
		e.mu.Unlock()

		return &StateError{Op: "DeleteWorkflow", ID: id, Err: ErrWorkflowRunning}
	}

	delete(e.workflows, id)
	e.workflowOrder = slices.DeleteFunc(e.workflowOrder, func(workflowID string) bool { return workflowID == id })
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", id)
	e.emit(ctx, events.WorkflowDeleted, id, wf.Clone())

	return nil
}

func (e *Engine) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wf, ok := e.workflows[id]
	if !ok {
		return nil, notFound(ErrWorkflowNotFound, id)
	}

	return wf.Clone(), nil
}

// ListWorkflows returns matching workflows in creation order.
func (e *Engine) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*models.Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var matched []*models.Workflow

	for _, id := range e.workflowOrder {
		if wf := e.workflows[id]; filter.matches(wf) {
			matched = append(matched, wf)
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = e.listLimit
	}

	page := paginate(matched, filter.Offset, limit)

	out := make([]*models.Workflow, len(page))
	for i, wf := range page {
		out[i] = wf.Clone()
	}

	return out, nil
}

// validateWorkflow collects every structural problem, node type problem and connection
// problem of wf.
func (e *Engine) validateWorkflow(wf *models.Workflow) []string {
	problems := validation.Struct(wf)

	if len(wf.Nodes) == 0 {
		problems = append(problems, "workflow must have at least one node")
	}

	if _, ok := wf.FirstTrigger(); !ok {
		problems = append(problems, "workflow must have at least one trigger node")
	}

	seen := make(map[string]bool, len(wf.Nodes))

	for _, node := range wf.Nodes {
		if node.ID != "" && seen[node.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %s", node.ID))
		}

		seen[node.ID] = true

		if node.Type == "" {
			continue
		}

		nodeType, ok := e.types.NodeType(node.Type)
		if !ok {
			problems = append(problems, fmt.Sprintf("node %s: unknown node type %q", node.ID, node.Type))

			continue
		}

		if result := nodeType.Validate(node.Config); !result.Valid {
			for _, problem := range result.Errors {
				problems = append(problems, fmt.Sprintf("node %s: %s", node.ID, problem))
			}
		}
	}

	for i, conn := range wf.Connections {
		label := conn.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		if conn.Source != "" && !seen[conn.Source] {
			problems = append(problems, fmt.Sprintf("connection %s: source node %s does not exist", label, conn.Source))
		}

		if conn.Target != "" && !seen[conn.Target] {
			problems = append(problems, fmt.Sprintf("connection %s: target node %s does not exist", label, conn.Target))
		}

		if conn.Condition != "" {
			if err := e.evaluator.Compile(conn.Condition); err != nil {
				problems = append(problems, fmt.Sprintf("connection %s: invalid condition: %v", label, err))
			}
		}
	}

	return problems
}
