// Step routing tools - the model-facing surface of the Controller.
//
// Information Hiding:
// - Destination enum construction hidden
// - Controller interaction hidden behind success/message payloads

package step

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forshape/stepflow/llm"
	"github.com/forshape/stepflow/tools"
)

// JumpTools exposes jump_to_step and call_step to the model, with
// destinations constrained to the active step's allow-list. A step with
// no allowed destinations contributes no tool definitions at all, so
// leaf steps never expose routing controls.
type JumpTools struct {
	controller *Controller
}

// NewJumpTools creates the routing tool provider.
func NewJumpTools(controller *Controller) *JumpTools {
	return &JumpTools{controller: controller}
}

// Definitions returns the routing tool schemas for the active step, or
// nothing when the active step has no destinations.
func (j *JumpTools) Definitions() []llm.ToolDefinition {
	dests := j.controller.ValidDestinations(j.controller.ActiveStep())
	if len(dests) == 0 {
		return nil
	}

	stepParam := func(action string) map[string]interface{} {
		return map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"step_name": map[string]interface{}{
					"type":        "string",
					"description": fmt.Sprintf("Name of the step to %s.", action),
					"enum":        dests,
				},
			},
			"required": []string{"step_name"},
		}
	}

	return []llm.ToolDefinition{
		{
			Name:        "jump_to_step",
			Description: "Transfer control to another step. Control does not return here.",
			Parameters:  stepParam("jump to"),
		},
		{
			Name:        "call_step",
			Description: "Run another step and return here once it finishes.",
			Parameters:  stepParam("call"),
		},
	}
}

// Functions returns the callable routing tools.
func (j *JumpTools) Functions() map[string]tools.Func {
	return map[string]tools.Func{
		"jump_to_step": func(_ context.Context, args map[string]interface{}) (string, error) {
			return j.request(args, j.controller.RequestJump)
		},
		"call_step": func(_ context.Context, args map[string]interface{}) (string, error) {
			return j.request(args, j.controller.RequestCall)
		},
	}
}

// request validates the target and reports the outcome as data. An
// invalid destination is a model mistake, not a failure: the model
// reads the message and retries with a valid target.
func (j *JumpTools) request(args map[string]interface{}, fn func(from, to string) (bool, string)) (string, error) {
	target, _ := args["step_name"].(string)
	var ok bool
	var message string
	if target == "" {
		ok, message = false, "step_name cannot be empty"
	} else {
		ok, message = fn(j.controller.ActiveStep(), target)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"success": ok,
		"message": message,
	})
	if err != nil {
		return "", fmt.Errorf("encoding routing result: %w", err)
	}
	return string(payload), nil
}
