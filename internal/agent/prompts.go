package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuefengz/workflow-use/internal/types"
)

const fallbackPromptTemplate = `Your task is to complete the step %[1]d of the workflow:

%[2]s

* There are %[3]d steps in the workflow. You are currently on step %[1]d. You can safely assume that the steps before this one were completed successfully.

* This deterministic action '%[4]s' was attempted but failed with the following context:
%[5]s

* The intended target or expected value for this step was: %[6]s

* Please analyze the situation and achieve the objective of step %[1]d using the available browser actions.

* Once the objective of step %[1]d is reached, call the ` + "`Done`" + ` action to complete the step.

* Do not proceed to the next step; focus ONLY on completing step %[1]d. DON'T DO ANYTHING ELSE.
`

const agenticStepTemplate = `Your task is: %[4]s

## More context and instructions:
* Your task is to complete the step %[1]d of the workflow:

%[2]s

* There are %[3]d steps in the workflow. You are currently on step %[1]d. You can safely assume that the steps before this one were completed successfully.
* Remember your task is to complete the step %[1]d of the workflow ONLY.
* Once the objective of step %[1]d is reached, call the ` + "`Done`" + ` action to complete the step.
* Do not proceed to the next step; focus ONLY on completing step %[1]d. DON'T DO ANYTHING ELSE.
`

// FallbackPrompt builds the recovery task handed to the agent after a
// deterministic step failed. stepIndex is zero-based; the rendered prompt
// speaks in one-based step numbers. The step must be the resolved one, so
// the agent sees concrete values rather than placeholders.
func FallbackPrompt(steps []types.Step, stepIndex int, step *types.Step, cause error) string {
	return fmt.Sprintf(fallbackPromptTemplate,
		stepIndex+1,
		Overview(steps, stepIndex),
		len(steps),
		step.Type,
		failDetails(steps, stepIndex, step, cause),
		failedValue(step),
	)
}

// AgenticStepPrompt frames a workflow-authored agent task with its position
// in the workflow and the only-this-step instructions.
func AgenticStepPrompt(steps []types.Step, stepIndex int, task string) string {
	return fmt.Sprintf(agenticStepTemplate,
		stepIndex+1,
		Overview(steps, stepIndex),
		len(steps),
		task,
	)
}

// Overview renders a numbered listing of the workflow's steps. The step at
// highlight (zero-based) is marked; pass a negative index for no marker.
func Overview(steps []types.Step, highlight int) string {
	lines := make([]string, 0, len(steps))
	for i := range steps {
		s := &steps[i]
		if i == highlight {
			lines = append(lines, fmt.Sprintf("  ** %d. (%s) %s ** - %s", i+1, s.Type, s.Description, formatParams(s)))
		} else {
			lines = append(lines, fmt.Sprintf("  %d. (%s) %s - %s", i+1, s.Type, s.Description, formatParams(s)))
		}
	}
	return strings.Join(lines, "\n")
}

// failDetails summarizes the failure in one line for the prompt.
func failDetails(steps []types.Step, stepIndex int, step *types.Step, cause error) string {
	desc := step.Description
	if desc == "" {
		desc = "No description provided"
	}
	errMsg := "Unknown error"
	if cause != nil {
		errMsg = cause.Error()
	}
	return fmt.Sprintf("step=%d/%d, action='%s', description='%s', params=%s, error='%s'",
		stepIndex+1, len(steps), step.Type, desc, formatParams(step), errMsg)
}

// failedValue describes what the failed action was trying to accomplish, in
// the terms an agent can act on.
func failedValue(step *types.Step) string {
	suffix := ""
	if step.Description != "" {
		suffix = fmt.Sprintf(" The purpose of this step is: %s.", step.Description)
	}

	switch step.Type {
	case types.StepNavigation:
		if step.Navigation != nil {
			return fmt.Sprintf("Navigate to URL: %s.%s", step.Navigation.URL, suffix)
		}
	case types.StepClick:
		return fmt.Sprintf("Find and click element with description: %s", step.Description)
	case types.StepInput:
		if step.Input != nil {
			return fmt.Sprintf("Input text: '%s' into element.%s", step.Input.Value, suffix)
		}
	case types.StepSelectChange:
		if step.SelectChange != nil {
			return fmt.Sprintf("Select option: '%s' in dropdown.%s", step.SelectChange.SelectedText, suffix)
		}
	case types.StepKeyPress:
		if step.KeyPress != nil {
			return fmt.Sprintf("Press key: '%s'.%s", step.KeyPress.Key, suffix)
		}
	case types.StepScroll:
		if step.Scroll != nil {
			return fmt.Sprintf("Scroll to position: (x=%d, y=%d).%s", step.Scroll.ScrollX, step.Scroll.ScrollY, suffix)
		}
	}
	return fmt.Sprintf("No specific target value available for action '%s'.%s", step.Type, suffix)
}

// formatParams renders a step's parameters deterministically, sorted by key.
func formatParams(step *types.Step) string {
	params := step.Params()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
