// Package mailbus routes emails by the domain of their recipient address and
// persists each one into a per-domain bucket.
//
// Works both as a library for embedding in your application AND as a
// standalone service with a REST API and a RabbitMQ consumer (see
// cmd/mailbus-server).
//
// # Features
//
//   - Topic routing on the recipient domain, exact or catch-all ("#")
//   - One partition queue and one consumer per binding; a slow or failing
//     bucket never blocks another
//   - Dedicated domains (default gmail.com and wp.com) get their own bucket;
//     every other domain shares "other" with its real domain on each record
//   - Connect-with-retry (default 15 attempts, 2s apart) and lazy one-time
//     schema initialization per bucket
//   - Pluggable storage: JSON files, SQL via Relica (PostgreSQL, MySQL,
//     SQLite) or Redis lists
//   - Pluggable Logger and AlertService, optional Prometheus metrics
//
// # Quick Start
//
//	driver, _ := jsonfile.NewDriver("./data")
//
//	store, _ := mailbus.NewStore(
//	    mailbus.WithDriver(driver),
//	    mailbus.WithStoreLogger(logger),
//	)
//
//	broker, _ := mailbus.NewBroker(
//	    mailbus.WithStore(store),
//	    mailbus.WithLogger(logger),
//	)
//	defer broker.Shutdown(ctx)
//
//	msg := model.NewMessage("bob@gmail.com", transform.ShiftByOne.Transform("Hello"))
//	_ = broker.Publish(ctx, msg.Domain, msg)
//
//	records, _ := broker.ReadAll(ctx, "gmail.com")
//
// # Message Flow
//
//  1. PUBLISH
//     model.NewMessage extracts the domain once; it is both the routing key
//     and the domain stored on the record.
//
//  2. ROUTE
//     Router → every queue whose binding matches the key (exact or "#").
//     A key nothing matches is dropped and counted as unroutable.
//
//  3. CONSUME
//     Consumer → skip dedicated domains on a catch-all binding
//     → Resolver picks the bucket → Store.Write.
//
//  4. PERSIST
//     Store → connect with retry → initialize the bucket once → insert.
//     Exhausted retries surface as UNAVAILABLE with the attempt count and
//     the last cause; the message is dropped and an alert is raised.
//
// # Error Codes
//
//	UNAVAILABLE            bucket unreachable within the retry budget
//	INITIALIZATION_FAILED  schema setup failed; retried on the next call
//	WRITE_REJECTED         the backend refused the record; not retried
//	MALFORMED_INPUT        a transport payload could not be decoded
//	NO_DATA                unknown bucket
//
// Use HasCode, IsUnavailable and AttemptsOf to inspect them.
package mailbus
