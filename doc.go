// Package skua provides durable collections: a blocking bounded Queue, a
// PriorityQueue, a Dict and a Set. Items are encoded with a Codec and kept
// as rows of a table reached through an adapter.Adapter, so they outlive
// the process that put them there.
//
// Without WithAdapter every collection opens its own private in-memory
// SQLite database. Pass a shared adapter to persist to a file, a server
// or an embedded KV store:
//
//	db, err := sqlite.Open(ctx, sqlite.Config{Path: "jobs.db"}, nil)
//	...
//	q, err := skua.NewQueue[Job](ctx, skua.WithAdapter(db), skua.WithMaxSize(100))
//	...
//	err = q.Put(ctx, job)                                  // blocks while full
//	job, err = q.Get(ctx, skua.Timeout(time.Second))       // ErrTimeout when nothing arrives
//	err = q.TaskDone()
//
// Queue follows the producer/consumer contract of a monitor: Put, Get and
// Join block, NoWait and Timeout bound the wait, and context cancellation
// releases any waiter with ctx.Err().
package skua
