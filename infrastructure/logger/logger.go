package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

const service = "content-distributor"

var logger = log.New()

func init() {
	logger.Out = output(os.Getenv("ENV"))
	logger.Formatter = &log.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	}
	logger.SetLevel(level(os.Getenv("LOG_LEVEL")))
}

// output writes to stdout unless LOG_TO_FILE=true, in which case a dated file
// under logs/ is used when it can be opened.
func output(env string) io.Writer {
	if os.Getenv("LOG_TO_FILE") != "true" {
		return os.Stdout
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Warnf("Failed get current working directory: %v, falling back to stdout", err)
		return os.Stdout
	}
	dir := filepath.Join(cwd, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warnf("Failed to create logs directory %s: %v, falling back to stdout", dir, err)
		return os.Stdout
	}
	path := filepath.Join(dir, fmt.Sprintf("%s%s.log", time.Now().Format("2006-01-02"), env))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		log.Warnf("Failed to open log file %s: %v, falling back to stdout", path, err)
		return os.Stdout
	}
	return f
}

func level(v string) log.Level {
	if parsed, err := log.ParseLevel(v); err == nil {
		return parsed
	}
	return log.DebugLevel
}

// GetLogger returns an entry annotated with the caller's function, file and line.
func GetLogger() *log.Entry {
	pc, file, line, _ := runtime.Caller(1)
	name := ""
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
	}
	return logger.WithFields(log.Fields{
		"service":   service,
		"requestId": time.Now().UnixNano() / int64(time.Millisecond),
		"function":  name,
		"file":      file,
		"line":      line,
	})
}

// Base exposes the underlying logger for libraries that want a Printf sink.
func Base() *log.Logger { return logger }
