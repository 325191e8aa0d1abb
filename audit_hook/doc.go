// Package audithook is an extension that writes retry decisions and
// operator actions on failed jobs to an audit trail.
//
// Every hook emits a structured [AuditEvent] through the [Recorder]
// interface, with a severity that tracks the event: info for operator
// retries, warning for scheduled retries and deletions, critical for
// terminal failures and failing failed-hooks.
//
// # Usage
//
//	eng, err := engine.New(cfg, fs, counter, dispatcher,
//	    engine.WithExtension(audithook.New(audithook.RecorderFunc(
//	        func(ctx context.Context, evt *audithook.AuditEvent) error {
//	            return auditLog.Write(ctx, evt)
//	        },
//	    ))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailedPermanently,
//	        audithook.ActionFailedJobDeleted,
//	    ),
//	)
package audithook
