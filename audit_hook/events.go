package audithook

// Audit event actions. Each constant corresponds to one ext hook and
// becomes the Action field of the audit event.
const (
	ActionJobRetryScheduled    = "job.retry_scheduled"
	ActionJobFailedPermanently = "job.failed_permanently"
	ActionJobHookFailed        = "job.failed_hook_error"
	ActionFailedJobRetried     = "failed_job.retried"
	ActionFailedJobDeleted     = "failed_job.deleted"
)

// Audit event categories group related actions.
const (
	CategoryAttempt  = "attempts.attempt"
	CategoryOperator = "attempts.operator"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob       = "job"
	ResourceFailedJob = "failed_job"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobRetryScheduled,
		ActionJobFailedPermanently,
		ActionJobHookFailed,
		ActionFailedJobRetried,
		ActionFailedJobDeleted,
	}
}
