// Package redis provides a Redis-backed throttling limiter for xctrl.
//
// Limiter name: "redis"
//
// Counters live in Redis so that several processes can share one limit. Only the
// counters are shared; events are still dispatched in-process.
//
// Config keys:
// - addr: "host:port" (default "127.0.0.1:6379")
// - username, password, db, tls, tls_server_name
// - prefix: key prefix (default "xctrl:throttle:")
// - limit: dispatches allowed per window (default 10)
// - window: window length (default 1m)
// - events: event names guarded by Use
//
// Example builder usage:
//
//	lim, _ := xctrl.NewLimiter(redis.LimiterName, map[string]any{
//	    "addr":   "localhost:6379",
//	    "limit":  20,
//	    "window": "1m",
//	})
//	ctrl.Pre(ctx, "message", xctrl.ThrottleGuard(lim, xctrl.KeyByArg(0)))
package redis
