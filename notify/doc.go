// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package notify hands notifications to the external email/WhatsApp worker.

Delivery is fire-and-forget. A failed send never rolls back the state change
that produced it; callers log the error and move on.

# Implementations

  - Log: writes to slog (used when no Redis is configured)
  - RedisStream: XADD to a stream read by the delivery worker
  - Async: bounded queue in front of another Notifier; drops when full
  - Multi: fan out to several notifiers

Typical wiring:

	var n notify.Notifier = notify.Log{}
	if cfg.RedisURL != "" {
		n = notify.NewRedisStream(client, cfg.NotifyStream)
	}
	async := notify.NewAsync(n, 256)
	defer async.Close(ctx)
*/
package notify
