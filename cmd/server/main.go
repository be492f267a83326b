package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/nexus-chat-server/internal/server"
)

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	server.SetupLogging(cfg.LogLevel)

	srv := server.NewServer(cfg)
	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("signal received")

	if err := srv.Shutdown(10 * time.Second); err != nil {
		os.Exit(1)
	}
}

// parseArgs accepts an optional -config flag followed by at most one
// positional argument selecting the listen port. Anything else is a fatal
// startup error.
func parseArgs(args []string) (*server.Config, error) {
	configPath := ""
	switch {
	case len(args) >= 1 && args[0] == "-config":
		if len(args) < 2 {
			return nil, fmt.Errorf("-config requires a file path")
		}
		configPath = args[1]
		args = args[2:]
	case len(args) >= 1 && strings.HasPrefix(args[0], "-config="):
		configPath = strings.TrimPrefix(args[0], "-config=")
		args = args[1:]
	}

	var cfg *server.Config
	var err error
	if configPath != "" {
		cfg, err = server.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = server.NewConfigFromEnv()
	}

	switch len(args) {
	case 0:
	case 1:
		port, convErr := strconv.Atoi(args[0])
		if convErr != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port number: %s", args[0])
		}
		cfg.Port = fmt.Sprintf(":%d", port)
	default:
		return nil, fmt.Errorf("you only have to pass in the port number")
	}

	return cfg, nil
}
