// Package governance decides what happens to validated proposals.
//
// A proposal enters through Intake and becomes a PendingIntent with a
// priority and a TTL derived from the intent types it carries. From there it
// reaches exactly one terminal state:
//
//   - approved: by an operator via Approve, or automatically when every
//     intent clears the confidence threshold and no lock or human-only type
//     applies. Approval claims the intent and executes it through the
//     capability router.
//   - rejected: by an operator via Reject.
//   - expired: by the dispatcher once the TTL elapses.
//
// The dispatcher started by Start calls Tick on a fixed interval. Each tick
// re-evaluates a batch of queued intents in priority order, then sweeps
// expired ones. Every transition is appended to a bounded audit log and
// published as an Event.
package governance
