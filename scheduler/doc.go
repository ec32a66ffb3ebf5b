// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package scheduler runs the periodic sweeps that move requests along without
a user action.

# Sweeps

	timeout    primary_assigned or backup_assigned requests whose primary
	           accepted more than the response window ago and has not
	           arrived → promote or reopen
	expiry     requests older than 7 days → delete (policy "all") or delete
	           only open ones (policy "open_only")
	follow-up  offers due for the 24h requester follow-up, 50 per sweep

Candidates are listed first and each item is then handed to the lifecycle
controller, which rechecks it under the request lock. An item that changed
in between is skipped, so overlapping sweeps and user actions are safe.

# Usage

	s, err := scheduler.New(scheduler.Config{
		Lifecycle:    ctrl,
		Lister:       st,
		Interval:     cfg.SweepInterval,
		Window:       ctrl.ResponseWindow(),
		ExpiryPolicy: cfg.ExpiryPolicy,
	})
	g.Go(func() error { return s.Run(ctx) })
*/
package scheduler
