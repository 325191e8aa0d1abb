// Package engine wires the attempt subsystems together and is the
// application-level entry point: register job types, enqueue work, and
// execute deliveries with bounded retries.
//
// # Building an Engine
//
//	eng, err := engine.New(cfg, failedStore, counter, dispatcher,
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// or, with every backend opened from configuration:
//
//	eng, err := engine.Open(ctx, cfg, engine.WithLogger(logger))
//	defer eng.Close()
//
// # Registering Work
//
//	err := engine.Register(eng, job.NewDefinition("send-email", sendEmail,
//	    job.WithMaxTries(3),
//	    job.WithBackoff(10, 30, 60),
//	))
//
// # Enqueuing and Executing
//
//	j, err := engine.Enqueue(ctx, eng, "send-email", EmailInput{To: "user@example.com"})
//
//	// In the transport consumer, once per delivery:
//	res, err := eng.Execute(ctx, delivered)
//
// # Options
//
//   - [WithLogger]: set the logger shared by every subsystem
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
