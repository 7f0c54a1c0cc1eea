// Deepstore backs up an application's database and storage directory into
// dated tar.gz archives, copies them to a remote host over SSH and prunes
// old archives with a retention policy.
//
// Usage:
//
//	# Run one backup
//	deepstore store
//
//	# Run with a custom configuration file
//	deepstore store --config /etc/deepstore/deepstore.yaml
//
//	# Preview which archives retention would delete
//	deepstore prune --dry-run
//
//	# Show archives with their keep/delete decision
//	deepstore list --remote
//
//	# Run backups on a cron schedule with metrics and health endpoints
//	deepstore daemon
package main

func main() {
	Execute()
}
