// Package job defines job deliveries, typed definitions and the registry
// the executor looks handlers up in.
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload travels as JSON and
// is decoded before the handler runs:
//
//	var SendEmail = job.NewDefinition("send_email",
//	    func(ctx context.Context, in EmailInput) error {
//	        return mailer.Send(in.To, in.Subject, in.Body)
//	    },
//	    job.WithMaxTries(3),
//	    job.WithBackoff(10, 30, 60),
//	    job.WithTimeout(time.Minute),
//	).OnFailure(func(ctx context.Context, in EmailInput, cause error) error {
//	    return audit.Record(ctx, in.To, cause)
//	})
//
// Retry options are validated when the definition is registered: a
// definition with fewer than one try is rejected with
// attempts.ErrConfiguration.
//
// # Registry
//
// [Registry] maps job names to [Entry] values holding the type-erased
// handler, the failure hook and the compiled retry policy:
//
//	if err := job.RegisterDefinition(registry, SendEmail); err != nil { ... }
package job
