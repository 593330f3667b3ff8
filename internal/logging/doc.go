// Package logging provides structured logging for synchcore.
//
// The package wraps log/slog with a JSON handler. Child loggers carry
// persistent attributes so that every line emitted by a subsystem can be
// traced back to the run, component and process that produced it.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/synchcore", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	ctl := logger.WithComponent("intersection")
//	ctl.Debug("vehicle admitted", "origin", "north", "destination", "south")
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"vehicle admitted","component":"intersection","origin":"north","destination":"south"}
//
// # Log Rotation
//
// Long simulation runs can produce a lot of debug output. Use
// [NewLoggerWithRotation] to cap the file size:
//
//	logger, err := logging.NewLoggerWithRotation(dir, "DEBUG", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	})
//
// Rotated files are named synchcore.log.1, synchcore.log.2, ... where .1 is
// the most recent backup.
//
// # Testing
//
// Use [NopLogger] to discard output, or [New] with a bytes.Buffer to assert
// on emitted lines.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package logging
