// Package worker implements the command dispatcher that owns the instrument bus.
//
// A Dispatcher runs one goroutine that pops commands from an unbounded FIFO
// mailbox and processes them strictly one at a time:
//
//	Idle -> EnsureSession -> Identify -> Execute -> Housekeeping -> Idle
//
// Producers on other goroutines only call Submit; they never touch the bus.
// An Abort command queued while another one is transferring data stops the
// running transfer at its next poll slice. Other queued commands wait their turn.
//
// The body of each domain command is supplied by the application through Handle:
//
//	d, _ := worker.New(bus, devCfg, worker.WithSink(sink))
//	_ = d.Handle(worker.KindRetrieveTrace, worker.Route{
//		Run: func(ctx context.Context, ex *worker.Exchange, cmd *worker.Command) gpib.Outcome {
//			data, _ := ex.Query("OUTPFORM;", 4096, 5*time.Second)
//			...
//			return ex.Outcome()
//		},
//	})
//	_ = d.Start(ctx)
//	_ = d.Submit(worker.Command{Kind: worker.KindRetrieveTrace})
//
// Every submitted command that reaches the worker produces exactly one
// Sink.PostCommandComplete call.
package worker
