// Package logging provides structured debug logging for shepherd runs.
//
// Logs are JSON lines written through log/slog into {state-dir}/debug.log.
// They are kept apart from run transcripts: a transcript records what the
// agent printed, the debug log records what shepherd decided about it
// (unknown targets, late status markers, silence warnings, extraction
// attempts).
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(stateDir, logging.Options{Level: "INFO"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRun(runID).WithWorkflow("status")
//	runLog.Warn("unknown target in status marker", "target", name)
//
// # Rotation
//
// [RotatingWriter] rotates debug.log once it grows past MaxSizeMB, keeping
// MaxBackups numbered backups that are optionally gzip compressed.
//
// # Reading Logs Back
//
// [AggregateLogs] parses debug.log, [FilterLogs] narrows entries by level,
// run, workflow, target or time window, and [ExportLogEntries] writes them
// as json, text or csv. These back the "shepherd logs" command.
//
// All types are safe for concurrent use.
package logging
