package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupBaseLogger installs the process-wide logrus defaults. Call once from
// main's init before anything logs.
func SetupBaseLogger() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// SetLogLevel maps a level name onto the root logger. Unknown or empty names
// fall back to info so a config typo never silences the gateway.
func SetLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "verbose":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "quiet", "silent":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// ConfigureFileOutput routes log output through a rotating file under dir
// when enabled, and back to stdout when not. The directory is created if
// missing; on failure the logger stays on stdout rather than dropping logs.
func ConfigureFileOutput(enabled bool, dir string) {
	if !enabled {
		log.SetOutput(os.Stdout)
		return
	}
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warnf("cannot create log directory %s, logging to stdout: %v", dir, err)
		return
	}
	var out io.Writer = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "agentgate.log"),
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.SetOutput(out)
}
