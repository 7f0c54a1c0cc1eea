// Package logging configures the process-wide slog handler.
//
// # Overview
//
// The package wraps log/slog with:
//   - JSON, text and console output formats
//   - Redaction of database passwords, URL credentials and bearer tokens
//   - Run and stage fields carried in the context
//   - A level that can be changed at runtime (config reload)
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	if err != nil {
//	    return err
//	}
//	logging.SetDefault(logger)
//
//	ctx = logging.WithRunID(ctx, runID)
//	slog.Default().With("component", "backup").InfoContext(ctx, "dump finished")
//
// # Redaction
//
// With RedactSecrets enabled, attribute values are rewritten before they
// reach the output:
//
//   - --password=hunter2 becomes --password=***
//   - PGPASSWORD=hunter2 and MYSQL_PWD=hunter2 become PGPASSWORD=*** and MYSQL_PWD=***
//   - postgres://app:hunter2@db/app becomes postgres://app:***@db/app
//   - Bearer abc.def becomes Bearer ***
//
// Attributes whose key names a secret (password, token, webhook_url, ...)
// are replaced entirely. Keys ending in _path or _file are left alone so
// ssh_key_path stays readable.
package logging
