// Command personabot runs the multi-personality assistant: Discord and
// Telegram channels, slash and bang commands, reminders, image
// generation and an admin web server, all driven by one orchestrator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	daemon "github.com/sevlyar/go-daemon"
	"golang.org/x/term"

	"github.com/hwestman/personabot/internal/config"
	. "github.com/hwestman/personabot/internal/logging"
	"github.com/hwestman/personabot/internal/setup"
)

const version = "1.2.0"

type CLI struct {
	Config   string `short:"c" type:"path" help:"Path to the config file. Defaults to ./personabot.json, then ~/.personabot/personabot.json."`
	LogLevel string `placeholder:"LEVEL" help:"Override the configured log level (trace, debug, info, warn, error)."`

	Run     RunCmd     `cmd:"" default:"withargs" help:"Start the bot (default command)."`
	Console ConsoleCmd `cmd:"" help:"Chat with the bot in an interactive terminal session."`
	Setup   SetupCmd   `cmd:"" help:"Run the configuration wizard."`
	Version VersionCmd `cmd:"" help:"Print the version and exit."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("personabot"),
		kong.Description("Multi-personality assistant for Discord and Telegram."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

// loadConfig resolves the config path, loads it and applies the level
// override ordering: --log-level beats the file, which beats "info".
func loadConfig(cli *CLI) (*config.Config, string, error) {
	Init(&Config{Level: ParseLevel(cli.LogLevel)})

	path := cli.Config
	if path == "" {
		path = config.FindConfig()
	}
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if cli.LogLevel == "" {
		SetLevel(ParseLevel(cfg.Log.Level))
	}
	return cfg, path, nil
}

// RunCmd starts every configured channel and blocks until a signal.
type RunCmd struct {
	Daemon bool `short:"d" help:"Detach and run in the background."`
}

func (r *RunCmd) Run(cli *CLI) error {
	cfg, path, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if r.Daemon {
		cntxt := &daemon.Context{
			PidFileName: filepath.Join(cfg.DataDir, "personabot.pid"),
			PidFilePerm: 0o644,
			LogFileName: filepath.Join(cfg.DataDir, "personabot.log"),
			LogFilePerm: 0o640,
			Umask:       0o27,
		}
		child, err := cntxt.Reborn()
		if err != nil {
			return fmt.Errorf("daemonizing: %w", err)
		}
		if child != nil {
			fmt.Printf("personabot started in the background, pid %d\n", child.Pid)
			return nil
		}
		defer cntxt.Release() //nolint:errcheck
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := buildBot(cfg)
	if err != nil {
		return err
	}

	b.startNetwork(ctx, path)

	L_info("personabot ready", "version", version)
	<-ctx.Done()

	SetShuttingDown()
	L_info("personabot shutting down")
	b.shutdown()
	return nil
}

// ConsoleCmd runs a local chat session instead of network channels.
type ConsoleCmd struct{}

func (c *ConsoleCmd) Run(cli *CLI) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("console mode needs an interactive terminal")
	}

	cfg, _, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := buildBot(cfg)
	if err != nil {
		return err
	}

	// Reminders set in the console are delivered back into it.
	b.scheduler.Start()

	err = b.manager.RunConsole(ctx, version)

	SetShuttingDown()
	b.shutdown()
	return err
}

// SetupCmd launches the interactive configuration wizard.
type SetupCmd struct{}

func (s *SetupCmd) Run(cli *CLI) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("setup needs an interactive terminal")
	}
	return setup.Run()
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (v *VersionCmd) Run(cli *CLI) error {
	fmt.Printf("personabot %s\n", version)
	return nil
}
