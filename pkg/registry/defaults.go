package registry

import (
	"fmt"

	"github.com/dukex/taskflow/pkg/datasource"
	"github.com/dukex/taskflow/pkg/expression"
	"github.com/dukex/taskflow/pkg/nodetypes/action"
	"github.com/dukex/taskflow/pkg/nodetypes/condition"
	"github.com/dukex/taskflow/pkg/nodetypes/delay"
	"github.com/dukex/taskflow/pkg/nodetypes/transform"
	"github.com/dukex/taskflow/pkg/nodetypes/trigger"
	"github.com/dukex/taskflow/pkg/nodetypes/webhook"
	"github.com/dukex/taskflow/pkg/tasktypes/customfunction"
	"github.com/dukex/taskflow/pkg/tasktypes/databasequery"
	"github.com/dukex/taskflow/pkg/tasktypes/fileoperation"
	"github.com/dukex/taskflow/pkg/tasktypes/httprequest"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"
)

// Dependencies are the collaborators the built-in types delegate to. Querier and Fs
// may be nil, in which case the corresponding task types fail at execution time.
type Dependencies struct {
	HTTPClient *resty.Client
	Querier    datasource.Querier
	Fs         afero.Fs
	Functions  *expression.Functions
	Evaluator  *expression.CELEvaluator
}

func (d Dependencies) withDefaults() (Dependencies, error) {
	if d.HTTPClient == nil {
		d.HTTPClient = resty.New()
	}

	if d.Functions == nil {
		d.Functions = expression.DefaultFunctions()
	}

	if d.Evaluator == nil {
		evaluator, err := expression.NewCELEvaluator()
		if err != nil {
			return d, fmt.Errorf("failed to create expression evaluator: %w", err)
		}

		d.Evaluator = evaluator
	}

	return d, nil
}

// RegisterDefaultTaskTypes registers http_request, database_query, file_operation and
// custom_function.
func (r *Registry) RegisterDefaultTaskTypes(deps Dependencies) error {
	deps, err := deps.withDefaults()
	if err != nil {
		return err
	}

	r.RegisterTaskType(httprequest.New(httprequest.WithClient(deps.HTTPClient)))
	r.RegisterTaskType(databasequery.New(deps.Querier))
	r.RegisterTaskType(fileoperation.New(deps.Fs))
	r.RegisterTaskType(customfunction.New(deps.Functions, deps.Evaluator))

	return nil
}

// RegisterDefaultNodeTypes registers trigger, action, condition, transform, delay and
// webhook. The action node resolves task types through this registry.
func (r *Registry) RegisterDefaultNodeTypes(deps Dependencies) error {
	deps, err := deps.withDefaults()
	if err != nil {
		return err
	}

	r.RegisterNodeType(trigger.New())
	r.RegisterNodeType(action.New(r))
	r.RegisterNodeType(condition.New(deps.Evaluator))
	r.RegisterNodeType(transform.New(deps.Evaluator))
	r.RegisterNodeType(delay.New())
	r.RegisterNodeType(webhook.New(deps.HTTPClient))

	return nil
}

// RegisterDefaults registers every built-in task type and node type with one shared set
// of dependencies.
func (r *Registry) RegisterDefaults(deps Dependencies) error {
	deps, err := deps.withDefaults()
	if err != nil {
		return err
	}

	if err := r.RegisterDefaultTaskTypes(deps); err != nil {
		return err
	}

	return r.RegisterDefaultNodeTypes(deps)
}
