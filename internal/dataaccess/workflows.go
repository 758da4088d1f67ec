package dataaccess

import (
	"context"
	"net/http"
	"time"

	"docdash/internal/cache"
	"docdash/internal/transport"
)

// Workflow is a server-side processing pipeline definition.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Steps       []string  `json:"steps,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Execution is one run of a workflow.
type Execution struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflowId"`
	Status     string         `json:"status"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

// Running reports whether the execution has not yet reached a terminal state.
func (e Execution) Running() bool {
	switch e.Status {
	case "pending", "running", "processing":
		return true
	}
	return false
}

// WorkflowService covers /workflows.
type WorkflowService struct {
	l *Layer
}

// List returns a page of workflow definitions.
func (s *WorkflowService) List(ctx context.Context, params PageParams) (Page[Workflow], error) {
	p, err := params.normalized()
	if err != nil {
		return Page[Workflow]{}, err
	}

	return cache.Query(ctx, s.l.cache, listKey(FamilyWorkflows, p), s.l.policy(FamilyWorkflows),
		func(ctx context.Context) (Page[Workflow], error) {
			return getJSON[Page[Workflow]](ctx, s.l, "/workflows", nil, p.query())
		})
}

// Get returns one workflow definition.
func (s *WorkflowService) Get(ctx context.Context, id string) (Workflow, error) {
	return cache.Query(ctx, s.l.cache, cache.NewKey(FamilyWorkflows, id), s.l.policy(FamilyWorkflows),
		func(ctx context.Context) (Workflow, error) {
			return getJSON[Workflow](ctx, s.l, "/workflows/{id}", map[string]string{"id": id}, nil)
		})
}

// Executions returns a page of a workflow's runs, newest first.
func (s *WorkflowService) Executions(ctx context.Context, id string, params PageParams) (Page[Execution], error) {
	p, err := params.normalized()
	if err != nil {
		return Page[Execution]{}, err
	}

	key := cache.NewKey(FamilyWorkflows, append([]string{id, "executions"}, p.keyParts()...)...)
	return cache.Query(ctx, s.l.cache, key, s.l.policy(FamilyWorkflows),
		func(ctx context.Context) (Page[Execution], error) {
			return getJSON[Page[Execution]](ctx, s.l, "/workflows/{id}/executions",
				map[string]string{"id": id}, p.query())
		})
}

// GetExecution fetches a single run. In-progress runs are never cached past
// the workflows staleness window, so polling sees fresh status.
func (s *WorkflowService) GetExecution(ctx context.Context, workflowID, executionID string) (Execution, error) {
	return getJSON[Execution](ctx, s.l, "/workflows/{id}/executions/{execId}",
		map[string]string{"id": workflowID, "execId": executionID}, nil)
}

// Execute starts a run and invalidates the workflow's execution pages.
func (s *WorkflowService) Execute(ctx context.Context, id string, input map[string]any) (Execution, error) {
	return cache.Mutate(ctx, s.l.cache,
		func(ctx context.Context) (Execution, error) {
			resp, err := s.l.client.Do(ctx, &transport.Request{
				Method:       http.MethodPost,
				Path:         "/workflows/{id}/execute",
				PathParams:   map[string]string{"id": id},
				Body:         map[string]any{"input": input},
				MutationSafe: true,
			})
			if err != nil {
				return Execution{}, err
			}
			var exec Execution
			if err := resp.Decode(&exec); err != nil {
				return Execution{}, err
			}
			return exec, nil
		},
		func(st *cache.Store, _ Execution) {
			s.invalidateExecutions(st, id)
		})
}

// CancelExecution asks the server to stop a run.
func (s *WorkflowService) CancelExecution(ctx context.Context, workflowID, executionID string) error {
	_, err := cache.Mutate(ctx, s.l.cache,
		func(ctx context.Context) (struct{}, error) {
			_, err := s.l.client.Do(ctx, &transport.Request{
				Method:       http.MethodPost,
				Path:         "/workflows/{id}/executions/{execId}/cancel",
				PathParams:   map[string]string{"id": workflowID, "execId": executionID},
				MutationSafe: true,
			})
			return struct{}{}, err
		},
		func(st *cache.Store, _ struct{}) {
			s.invalidateExecutions(st, workflowID)
		})
	return err
}

// WaitForExecution polls a run until it reaches a terminal state. onUpdate
// (optional) observes every poll, the terminal one included.
func (s *WorkflowService) WaitForExecution(ctx context.Context, workflowID, executionID string, onUpdate func(Execution)) (Execution, error) {
	return cache.Poll(ctx, s.l.pollInterval,
		func(ctx context.Context) (Execution, error) {
			return s.GetExecution(ctx, workflowID, executionID)
		},
		Execution.Running, onUpdate)
}

func (s *WorkflowService) invalidateExecutions(st *cache.Store, workflowID string) {
	st.InvalidateFunc(func(k cache.Key) bool {
		return k.Family == FamilyWorkflows && len(k.Parts) >= 2 &&
			k.Parts[0] == workflowID && k.Parts[1] == "executions"
	})
}
