package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/kuzushiji-mcp/internal/config"
	"github.com/ironsheep/kuzushiji-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("kuzushiji-mcp - MCP server for Kuzushiji character detection")
	fmt.Println()
	fmt.Println("Usage: kuzushiji-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config PATH    YAML or JSON configuration file")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  KUZUSHIJI_CONFIG=PATH              Configuration file when --config is not given")
	fmt.Println("  KUZUSHIJI_LOG_LEVEL=debug          Log level (trace, debug, info, warn, error)")
	fmt.Println("  KUZUSHIJI_DATASET_ROOT=PATH        Kaggle Kuzushiji Recognition directory")
	fmt.Println("  KUZUSHIJI_DETECTOR_THRESHOLD=0.3   Any other setting as KUZUSHIJI_<SECTION>_<KEY>")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("kuzushiji-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		}
	}

	configPath := flag.String("config", os.Getenv("KUZUSHIJI_CONFIG"), "configuration file")
	flag.Usage = usage
	flag.Parse()

	// Log to stderr; stdout is for MCP protocol
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	level, err := cfg.Level()
	if err != nil {
		logger.WithError(err).Fatal("invalid log level")
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
		"config":  *configPath,
	}).Debug("kuzushiji MCP server starting")

	srv := server.New(cfg, server.WithLogger(logger), server.WithVersion(Version))
	if err := srv.Run(); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}
