package temporal

// TaskQueueName is the default task queue for execution workflows; config can
// override it.
const TaskQueueName = "railyard-executions"

// WorkflowIDPrefix namespaces execution workflow IDs.
const WorkflowIDPrefix = "railyard-exec-"
