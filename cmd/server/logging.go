package main

import (
	"os"

	"github.com/op/go-logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"mensajeria/internal/config"
)

var stdoutLogFormat = logging.MustStringFormatter(
	`%{color:reset}%{color}%{time:15:04:05.000} [%{module}] [%{shortfunc}] [%{level}] %{message}`,
)

var fileLogFormat = logging.MustStringFormatter(
	`%{time:2006-01-02T15:04:05.000} [%{module}] [%{shortfunc}] [%{level}] %{message}`,
)

// setupLogging sends every module logger to stdout and, when configured, to
// a rotating file.
func setupLogging(c *config.Config) {
	level, err := logging.LogLevel(c.LogLevel)
	if err != nil {
		level = logging.INFO
	}

	backendStdout := logging.NewLogBackend(os.Stdout, "", 0)
	backends := []logging.Backend{logging.NewBackendFormatter(backendStdout, stdoutLogFormat)}

	if c.LogFile != "" {
		w := &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}
		backendFile := logging.NewLogBackend(w, "", 0)
		backends = append(backends, logging.NewBackendFormatter(backendFile, fileLogFormat))
	}

	leveled := logging.MultiLogger(backends...)
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}
