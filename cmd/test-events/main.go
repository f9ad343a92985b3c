package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/pacelog/pacelog/internal/testevents"
)

// Default configuration constants.
const (
	defaultNumSessions = 200
	defaultUpdates     = 10
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "Base URL of the service")
		sessions   = flag.Int("sessions", defaultNumSessions, "Number of session lifecycles to generate")
		updates    = flag.Int("updates", defaultUpdates, "Update events per session")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for generated submissions (default: generated_sessions_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	if err := testevents.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &testevents.Config{
		BaseURL:           *baseURL,
		NumSessions:       *sessions,
		UpdatesPerSession: *updates,
		Workers:           *workers,
		Timeout:           *timeout,
		OutputFile:        *outputFile,
		LogFile:           *logFile,
		Verbose:           *verbose,
	}

	if err := testevents.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		return
	}
}
