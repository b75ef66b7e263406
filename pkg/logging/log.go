// Package logging provides leveled log functions that write to stdout or,
// when configured, to a rotating log file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/lumberjack"
)

// Mode is the minimum severity that gets written
type Mode uint

const (
	DebugMode Mode = iota
	InfoMode
	WarningMode
	ErrorMode
	SilentMode
)

// Config selects where log output goes
type Config struct {
	// File is the log file path; empty logs to stdout
	File string `yaml:"file"`

	// MaxSize is the size in megabytes at which the file is rotated
	MaxSize int `yaml:"maxSize"`

	// MaxAge is the number of days rotated files are kept
	MaxAge int `yaml:"maxAge"`

	// Verbose enables debug messages
	Verbose bool `yaml:"verbose"`
}

var (
	mu     sync.Mutex
	mode   = InfoMode
	logger = log.New(os.Stdout, "", log.LstdFlags)
	closer io.Closer
)

// Setup applies cfg, replacing any previous configuration. The returned
// function closes the log file if one was opened.
func Setup(cfg Config) func() error {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		closer.Close()
		closer = nil
	}

	mode = InfoMode
	if cfg.Verbose {
		mode = DebugMode
	}

	if cfg.File == "" {
		logger = log.New(os.Stdout, "", log.LstdFlags)
		return func() error { return nil }
	}

	fmt.Printf("Sending log messages to: %s\n", cfg.File)
	l := &lumberjack.Logger{
		Filename: cfg.File,
		MaxSize:  cfg.MaxSize, // megabytes
		MaxAge:   cfg.MaxAge,  // days
	}
	logger = log.New(l, "", log.LstdFlags)
	closer = l
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		if closer == l {
			closer = nil
		}
		return l.Close()
	}
}

// SetOutput redirects log output, mainly for tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", 0)
}

// SetMode sets the severity required for a message to be written
func SetMode(m Mode) {
	mu.Lock()
	defer mu.Unlock()
	mode = m
}

func output(m Mode, level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if mode <= m {
		logger.Printf(level+" "+format, args...)
	}
}

func Debugf(format string, args ...interface{}) {
	output(DebugMode, "DEBUG", format, args...)
}

func Infof(format string, args ...interface{}) {
	output(InfoMode, "INFO", format, args...)
}

func Warningf(format string, args ...interface{}) {
	output(WarningMode, "WARNING", format, args...)
}

func Errorf(format string, args ...interface{}) {
	output(ErrorMode, "ERROR", format, args...)
}

// Bytes formats a byte count for log messages, e.g. "83 MB"
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}
