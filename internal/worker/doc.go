// Package worker provides a goroutine pool for concurrent job execution.
//
// The Pool runs a fixed number of worker goroutines that take jobs from a
// shared bounded queue. Jobs receive the pool context and the id of the
// worker running them, so long-lived jobs (a client session, for instance)
// can stop when the pool is stopped.
//
//	pool := worker.NewPool(4)
//	pool.Start(ctx)
//	for i := 0; i < 100; i++ {
//	    pool.Submit(func(ctx context.Context, id int) {
//	        // do work
//	    })
//	}
//	pool.Wait() // run everything that was submitted
//
// Stop cancels the pool context instead and drops jobs still queued.
package worker
