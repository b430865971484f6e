/*
Package resilience provides the breaker that guards worker spawning.

# Overview

A spawn failure is fatal to a round, so once the process table or the
executable is unusable there is no point forking the remaining tasks. The
worker pool runs every launch through a Breaker; once it trips, later
launches fail immediately with ErrOpen and are reported as spawn errors
without touching the operating system.

# Usage

	guard := resilience.New("spawn", resilience.Settings{
		MaxFailures: 1,
		OnTrip: func(name string, counts resilience.Counts) {
			logger.Warn("spawn breaker tripped", zap.Uint32("failures", counts.ConsecutiveFailures))
		},
	})

	err := guard.Execute(func() error {
		return cmd.Start()
	})

# States

	Closed --[MaxFailures consecutive failures]-> Open --[Cooldown]-> Half-Open
	Half-Open --[success]-> Closed
	Half-Open --[failure]-> Open

A zero Cooldown keeps the breaker open for the rest of its life, which is
what a single scatter-gather round wants.
*/
package resilience
