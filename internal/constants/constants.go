// Package constants is responsible for defining the constants used in the application.
package constants

import (
	"log/slog"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "g292-check"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// ReportExt is the default extension for the report files.
	ReportExt = ".json"

	// DefaultMountBase is the directory prefix mount points are derived from.
	// Drive i of the target set mounts at DefaultMountBase + i.
	DefaultMountBase = "/mnt/data"

	// DefaultWriteTestSizeMB is the payload size written to each drive during
	// the integrity test when the configuration does not override it.
	DefaultWriteTestSizeMB = 100
)
