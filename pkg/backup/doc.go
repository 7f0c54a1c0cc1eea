// Package backup runs deepstore backups.
//
// A run takes the run lock, dumps the database and collects the source
// tree into a staging directory, packs both into a dated tar.gz archive,
// uploads it to the remote host and then applies the retention policy to
// the local backup directory and, when enabled, to the remote directory.
// Every run ends with a notification, a history record and metrics.
//
// # Failure handling
//
// A failure in the dump, archive or upload stage fails the run. Retention
// runs whenever an archive was created, even if the upload failed, and its
// errors are recorded on the Report without failing the run. The staging
// directory is removed in every case.
//
// # Scheduling
//
// Scheduler runs a Job on a cron expression for the daemon command. The
// job can be swapped while the scheduler runs, which is how configuration
// reloads take effect.
package backup
