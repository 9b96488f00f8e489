// Package memento is a sharded in-memory cache served over a line-oriented
// text protocol.
//
// Keys map to string values. The key space is split across a fixed number of
// independently locked shards, and entries expire by generational aging
// instead of by time: every fifth write to a shard ages all of its entries by
// one, entries that reach age five are evicted, and reading or writing a key
// resets its age.
//
// # Architecture Overview
//
// memento consists of several key components:
//
//   - Query grammar: parser combinators for the two request forms
//   - Cache: a router over shards with per-shard aging sweeps
//   - Additive hash: byte sum plus adjacent-byte differences, mod shard count
//   - Protocol: one request line in, one response line out
//   - Server: TCP accept loop with a goroutine per connection
//   - Client: consistent hashing over several servers with pooled connections
//   - Configuration: flags, environment variables and an optional .env file
//
// # Quick Start
//
// Server:
//
//	./memento-server -port 7366 -shards 4
//	# or
//	MEMENTO_PORT=7366 MEMENTO_SHARDS=4 ./memento-server
//
// Talking to it by hand:
//
//	$ nc 127.0.0.1 7366
//	<ADD: ("user:1", "alice")>
//	"OK
//	<GET: ("user:1")>
//	alice
//	<GET: ("user:2")>
//	"NIL
//
// Client:
//
//	import "github.com/memento-kv/memento/pkg/client"
//
//	c, err := client.New([]string{"127.0.0.1:7366"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	_ = c.Add("user:1", "alice")
//	value, found, err := c.Get("user:1")
//
// Embedded:
//
//	import "github.com/memento-kv/memento/pkg/cache"
//
//	router, err := cache.NewRouter(4)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer router.Close()
//
// # Responses
//
// A GET hit is answered with the raw value. Every other response starts with
// a double quote, a byte no key or value may contain:
//
//	"OK            ADD stored
//	"NIL           GET found nothing
//	"ERR <reason>  the request was rejected
//
// A malformed request is answered with "ERR and the connection stays open.
//
// # Configuration
//
// Every server flag has a MEMENTO_ environment variable. Flags win over the
// environment, which wins over the defaults:
//
//	-host          MEMENTO_HOST            127.0.0.1
//	-port          MEMENTO_PORT            7366
//	-shards        MEMENTO_SHARDS          4
//	-max-conns     MEMENTO_MAX_CONNS       1000
//	-log-level     MEMENTO_LOG_LEVEL       info
//	-metrics-addr  MEMENTO_METRICS_ADDR    (disabled)
//
// When a metrics address is set, Prometheus metrics are served at /metrics.
//
// # Package Structure
//
//   - pkg/query: request grammar, Query values and serialization
//   - pkg/cache: shards, router, aging sweeps and metrics
//   - pkg/hash: additive shard hash and the client's consistent hash ring
//   - pkg/protocol: response format and line framing
//   - pkg/client: client with node selection and connection pooling
//   - pkg/config: configuration management
//   - internal/server: server implementation
//   - cmd/server: server executable
//   - cmd/client-example: example client usage
//   - examples: embedding the cache and server in one process
package memento
