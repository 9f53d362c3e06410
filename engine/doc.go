// Package engine wires all steady subsystems together and provides
// the primary application-level API for registering and enqueuing work.
//
// The engine package exists to break a fundamental import cycle: the
// root steady package defines Entity and Config (imported by job,
// worker, etc.) and therefore cannot import those packages back. Engine
// sits above all subsystem packages and below the application layer.
//
// # Building an Adapter
//
//	a, err := engine.New(
//	    engine.WithStore(pgStore),
//	    engine.WithExecutionMode(steady.ModeAsyncAll),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(middleware.Logging(logger)),
//	    engine.WithBackoff(backoff.NewExponential(time.Second, time.Minute)),
//	    engine.WithQueueConfig(queue.Config{
//	        Name:      "critical",
//	        RateLimit: 100,
//	    }),
//	)
//
// # Registering Work
//
//	engine.Register(a, SendEmail)
//
// # Enqueuing Jobs
//
//	engine.Enqueue(ctx, a, "send-email", EmailInput{To: "user@example.com"})
//
//	// With options
//	engine.Enqueue(ctx, a, "send-email", input,
//	    job.WithScheduledAt(time.Now().Add(5*time.Minute)),
//	    job.WithPriority(10),
//	)
//
// # Recurring Jobs
//
//	engine.RegisterCron(a, &cron.Definition[ReportInput]{
//	    Name:     "daily-report",
//	    Schedule: "0 9 * * *",
//	    JobName:  "generate-report",
//	    Payload:  ReportInput{Format: "pdf"},
//	})
//
// Registered schedules fire once the adapter is started; see the cron
// package for multi-process semantics.
//
// # Execution Modes
//
//   - [steady.ModeInline] — the job runs to completion on the enqueuing
//     goroutine before Enqueue returns
//   - [steady.ModeAsyncAll] — the job is handed straight to the
//     adapter's own capsule, bypassing the poller
//   - [steady.ModeExternal] — the job is persisted only; a separately
//     running capsule's poller claims it
//
// # Options
//
//   - [WithExtension] — register a lifecycle extension
//   - [WithMiddleware] — add a middleware to the execution chain
//   - [WithBackoff] — set the retry backoff strategy
//   - [WithReporter] — set the terminal-error reporter
//   - [WithQueueConfig] — configure per-queue rate limits and concurrency
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
