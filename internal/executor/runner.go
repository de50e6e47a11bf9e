package executor

// StatusDone is the only outcome the runner reports; tasks are acknowledged, not executed.
const StatusDone = "done"

type TaskResult struct {
	TaskID any    `json:"task_id"`
	Status string `json:"status"`
	Detail any    `json:"detail"`
}

type Report struct {
	ReceivedPlanID any          `json:"received_plan_id"`
	Results        []TaskResult `json:"results"`
}

// Run reports every entry of plan["tasks"] as done, in order. It depends only on its input, so
// redelivered plans produce identical reports. Anything that is not an object with a tasks array
// yields an empty result list.
func Run(plan any) Report {
	report := Report{Results: []TaskResult{}}
	obj, ok := plan.(map[string]any)
	if !ok {
		return report
	}
	report.ReceivedPlanID = obj["plan_id"]

	tasks, ok := obj["tasks"].([]any)
	if !ok {
		return report
	}
	for _, t := range tasks {
		var id any
		if task, ok := t.(map[string]any); ok {
			id = task["id"]
		}
		report.Results = append(report.Results, TaskResult{
			TaskID: id,
			Status: StatusDone,
			Detail: t,
		})
	}
	return report
}
