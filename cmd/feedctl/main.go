package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/motorlane/feedbridge/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := ParseFlags()

	if *flags.Version {
		PrintVersion()
		os.Exit(0)
	}
	if *flags.Help {
		PrintHelp()
		os.Exit(0)
	}

	if *flags.CreateConfig {
		createConfigTemplate(*flags.Config)
		return
	}

	// Валидация файла не требует ни базы, ни vault.
	if *flags.Validate != "" {
		if err := cmdValidate(*flags.Validate); err != nil {
			fatal("%v", err)
		}
		return
	}

	if !commandWasSpecified(flags) {
		PrintHelp()
		os.Exit(1)
	}

	cfg, err := config.Load(*flags.Config)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		fatal("%v", err)
	}

	var cmdErr error
	switch {
	case *flags.List:
		cmdErr = cmdList(ctx, app, *flags.Dealer, *flags.AsJSON)
	case *flags.Save != "":
		cmdErr = cmdSave(ctx, app, *flags.Save)
	case *flags.Delete != "":
		cmdErr = cmdDelete(ctx, app, *flags.Delete)
	case *flags.Run != "":
		cmdErr = cmdRun(ctx, app, *flags.Run, *flags.Rows, *flags.AsJSON)
	case *flags.Preview != "":
		cmdErr = cmdPreview(ctx, app, *flags.Preview, *flags.Limit, *flags.AsJSON)
	case *flags.History != "":
		cmdErr = cmdHistory(ctx, app, *flags.History, *flags.Limit, *flags.Offset, *flags.AsJSON)
	case *flags.Errors != "":
		cmdErr = cmdErrors(ctx, app, *flags.Errors, *flags.Limit, *flags.AsJSON)
	case *flags.Schedule:
		cmdErr = cmdSchedule(ctx, app, *flags.Dealer, *flags.AsJSON)
	}

	// fatal обходит defer через os.Exit, поэтому ресурсы закрываются явно.
	app.Close()
	if cmdErr != nil {
		fatal("%v", cmdErr)
	}
}

// createConfigTemplate создает образец сервисной конфигурации.
func createConfigTemplate(path string) {
	if _, err := os.Stat(path); err == nil {
		fatal("Refusing to overwrite existing %s", path)
	}
	if err := config.Save(path, config.Sample()); err != nil {
		fatal("Failed to save config: %v", err)
	}
	fmt.Printf("✓ Created sample config: %s\n", path)
	fmt.Println("Edit the file, export FEEDBRIDGE_VAULT_PASSPHRASE and run:")
	fmt.Printf("  feedctl --list --config %s\n", path)
}

// commandWasSpecified checks if any command was specified
func commandWasSpecified(flags *Flags) bool {
	return *flags.List ||
		*flags.Save != "" ||
		*flags.Delete != "" ||
		*flags.Run != "" ||
		*flags.Preview != "" ||
		*flags.History != "" ||
		*flags.Errors != "" ||
		*flags.Schedule
}

// fatal prints error and exits
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
