// Package retention decides which backup archives to keep and applies that
// decision to a local directory or a remote host.
//
// # Policy
//
// A Policy has two rules whose results are combined:
//
//   - LatestToKeep: the N newest archives survive
//   - KeepFirstOfMonth: the earliest archive of every calendar month survives
//
// Everything matched by neither rule is deleted. Evaluation is a pure
// function over archive names; the directory itself is the only state.
//
//	codec, _ := archive.NewCodec("archive_", "YYYY-MM-DD")
//	decision := retention.Decide(names, codec, retention.Policy{
//	    LatestToKeep:     7,
//	    KeepFirstOfMonth: true,
//	})
//	for _, name := range decision.DeleteNames() {
//	    ...
//	}
//
// Names that do not follow the archive naming convention are ignored and
// reported in Decision.Skipped.
//
// # Enforcement
//
// An Enforcer runs the same evaluation against any Store. LocalStore covers
// the backup directory; the remote transports in package transfer implement
// Store over SSH.
//
//	enforcer := retention.NewEnforcer(codec, policy, logger)
//	result, err := enforcer.Enforce(ctx, retention.NewLocalStore("/var/backups"))
//
// Deletions are attempted one at a time. A failed deletion is logged and
// recorded in the Result while the rest of the batch continues. If the
// store cannot be listed nothing is deleted and ErrListing is returned.
//
// Concurrent runs against the same directory are not coordinated here; the
// backup runner serialises them with a run lock.
package retention
