package realtime

import "context"

// ShutdownResult describes how the shutdown sequence went.
type ShutdownResult struct {
	Signalled int // sessions woken by the global disconnect
	Forced    int // transports force-closed after the first grace period
	Remaining int // sessions still active after the second grace period
}

// Shutdown disconnects every session: it refuses new upgrades, sets the
// global disconnect flag, waits for sessions to drain, force-closes what is
// left and waits once more. Sessions remaining after that are logged and
// left to finish on their own. The caller stops the HTTP server afterwards.
func (g *Gateway) Shutdown(ctx context.Context) ShutdownResult {
	g.Quiesce()

	var res ShutdownResult
	res.Signalled = g.reg.DisconnectAll()
	g.log.Info("ws.shutdown.start", "sessions", res.Signalled)

	if g.reg.WaitIdle(ctx, g.grace) {
		g.log.Info("ws.shutdown.done")
		return res
	}

	res.Forced = g.reg.ForceClose()
	g.m.forcedClose(res.Forced)
	if res.Forced > 0 {
		g.log.Warn("ws.shutdown.force_close", "sessions", res.Forced, "grace", g.grace.String())
	}

	if !g.reg.WaitIdle(ctx, g.closeGrace) {
		res.Remaining = g.reg.Active()
		g.log.Warn("ws.shutdown.sessions_remaining", "sessions", res.Remaining)
		return res
	}
	g.log.Info("ws.shutdown.done")
	return res
}
