// Package fileoperation provides the file_operation task type.
package fileoperation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
	"github.com/spf13/afero"
)

const (
	Name = "file_operation"

	OperationRead   = "read"
	OperationWrite  = "write"
	OperationAppend = "append"
	OperationDelete = "delete"
	OperationCopy   = "copy"
	OperationMove   = "move"
	OperationList   = "list"
	OperationExists = "exists"

	filePermissions = 0o644
	dirPermissions  = 0o755
)

var (
	Operations = []string{
		OperationRead, OperationWrite, OperationAppend, OperationDelete,
		OperationCopy, OperationMove, OperationList, OperationExists,
	}

	ErrNoFilesystem = errors.New("no filesystem configured")
)

// TaskType performs file operations on an afero filesystem.
type TaskType struct {
	fs afero.Fs
}

// New creates the task type. The binary passes a base path filesystem so tasks cannot
// escape the configured root.
func New(fs afero.Fs) *TaskType {
	return &TaskType{fs: fs}
}

func (t *TaskType) Name() string {
	return Name
}

func (t *TaskType) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": Operations,
			},
			"path": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content for write and append, or for copy and move without a source",
			},
			"sourcePath": map[string]any{
				"type":        "string",
				"description": "Source for copy and move, or for write without content",
			},
		},
		"required": []string{"operation", "path"},
	}
}

func (t *TaskType) Validate(config map[string]any) protocol.ValidationResult {
	errs := validation.Schema(t.Schema(), config)

	_, hasContent := config["content"].(string)
	hasSource := protocol.ConfigString(config, "sourcePath") != ""

	switch protocol.ConfigString(config, "operation") {
	case OperationWrite, OperationCopy, OperationMove:
		if !hasContent && !hasSource {
			errs = append(errs, "content or sourcePath is required for write, copy and move")
		}
	case OperationAppend:
		if !hasContent {
			errs = append(errs, "content is required for append")
		}
	}

	return protocol.NewValidationResult(errs, nil)
}

func (t *TaskType) EstimateResources(map[string]any) []models.ResourceRequirement {
	return []models.ResourceRequirement{
		{Type: models.ResourceTypeDisk, Amount: 1, Unit: "MB"},
	}
}

func (t *TaskType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	if t.fs == nil {
		return protocol.Failed(ErrNoFilesystem.Error())
	}

	operation := protocol.ConfigString(config, "operation")
	target := path.Clean("/" + protocol.ConfigString(config, "path"))

	execCtx.Log().DebugContext(ctx, "Running file operation", "module", Name, "operation", operation, "path", target)

	if !slices.Contains(Operations, operation) {
		return protocol.Failed(fmt.Sprintf("unknown operation %q", operation))
	}

	out, err := t.run(operation, target, config)
	if err != nil {
		return protocol.Failed(fmt.Sprintf("%s %s: %v", operation, target, err))
	}

	out["operation"] = operation
	out["path"] = target

	return protocol.Succeeded(out)
}

func (t *TaskType) run(operation, target string, config map[string]any) (map[string]any, error) {
	content, hasContent := config["content"].(string)

	source := ""
	if raw := protocol.ConfigString(config, "sourcePath"); raw != "" {
		source = path.Clean("/" + raw)
	}

	switch operation {
	case OperationRead:
		data, err := afero.ReadFile(t.fs, target)
		if err != nil {
			return nil, err
		}

		return map[string]any{"content": string(data), "size": len(data)}, nil
	case OperationWrite:
		if hasContent || source == "" {
			return t.write(target, []byte(content))
		}

		return t.copy(source, target)
	case OperationAppend:
		return t.append(target, content)
	case OperationDelete:
		if err := t.fs.RemoveAll(target); err != nil {
			return nil, err
		}

		return map[string]any{"deleted": true}, nil
	case OperationCopy:
		if source == "" {
			return t.write(target, []byte(content))
		}

		return t.copy(source, target)
	case OperationMove:
		if source == "" {
			return t.write(target, []byte(content))
		}

		if err := t.fs.MkdirAll(path.Dir(target), dirPermissions); err != nil {
			return nil, err
		}

		if err := t.fs.Rename(source, target); err != nil {
			return nil, err
		}

		return map[string]any{"sourcePath": source}, nil
	case OperationList:
		infos, err := afero.ReadDir(t.fs, target)
		if err != nil {
			return nil, err
		}

		entries := make([]any, 0, len(infos))
		for _, info := range infos {
			entries = append(entries, map[string]any{
				"name":  info.Name(),
				"size":  info.Size(),
				"isDir": info.IsDir(),
			})
		}

		return map[string]any{"entries": entries, "count": len(entries)}, nil
	case OperationExists:
		exists, err := afero.Exists(t.fs, target)
		if err != nil {
			return nil, err
		}

		return map[string]any{"exists": exists}, nil
	}

	return nil, fmt.Errorf("unknown operation %q", operation)
}

func (t *TaskType) write(target string, data []byte) (map[string]any, error) {
	if err := t.fs.MkdirAll(path.Dir(target), dirPermissions); err != nil {
		return nil, err
	}

	if err := afero.WriteFile(t.fs, target, data, filePermissions); err != nil {
		return nil, err
	}

	return map[string]any{"size": len(data)}, nil
}

// copy writes the content of source to target.
func (t *TaskType) copy(source, target string) (map[string]any, error) {
	data, err := afero.ReadFile(t.fs, source)
	if err != nil {
		return nil, err
	}

	out, err := t.write(target, data)
	if err != nil {
		return nil, err
	}

	out["sourcePath"] = source

	return out, nil
}

func (t *TaskType) append(target, content string) (map[string]any, error) {
	file, err := t.fs.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermissions)
	if err != nil {
		return nil, err
	}

	written, err := file.WriteString(content)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return nil, err
	}

	return map[string]any{"size": written}, nil
}
