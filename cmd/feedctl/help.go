package main

import "fmt"

const version = "0.4.0"

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("feedctl version %s\n", version)
	fmt.Println("feedbridge - dealer inventory feed pipeline")
}

// PrintHelp prints comprehensive help information
func PrintHelp() {
	fmt.Println("feedctl - dealer inventory feed pipeline control")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Println("USAGE:")
	fmt.Println("  feedctl [command] [options]")
	fmt.Println()

	fmt.Println("COMMANDS:")
	fmt.Println()

	fmt.Println("  Pipeline Configs:")
	fmt.Println("    --list                     List pipeline configs")
	fmt.Println("    --save <file.json>         Validate and store a pipeline config")
	fmt.Println("    --validate <file.json>     Validate a pipeline config without storing")
	fmt.Println("    --delete <config-id>       Delete a pipeline config")
	fmt.Println()

	fmt.Println("  Execution:")
	fmt.Println("    --run <config-id>          Execute a config now")
	fmt.Println("    --preview <config-id>      Dry-run an import without writing to inventory")
	fmt.Println()

	fmt.Println("  History:")
	fmt.Println("    --history <config-id|all>  Show execution history")
	fmt.Println("    --errors <execution-id>    Show row errors of an execution")
	fmt.Println()

	fmt.Println("  Scheduling:")
	fmt.Println("    --schedule                 Show next run time of every active config")
	fmt.Println()

	fmt.Println("OPTIONS:")
	fmt.Println("    --config <file>            Service config file (default: feedbridge.yaml)")
	fmt.Println("    --dealer <id>              Filter configs by dealer")
	fmt.Println("    --rows <2,5,7>             Import only listed 1-based rows (with --run)")
	fmt.Println("    --limit <n>                Row limit for preview/history/errors")
	fmt.Println("    --offset <n>               Offset for history")
	fmt.Println("    --json                     Print results as JSON")
	fmt.Println("    --create-config            Create a sample service config file")
	fmt.Println()

	fmt.Println("ENVIRONMENT:")
	fmt.Println("    FEEDBRIDGE_VAULT_PASSPHRASE   Passphrase encrypting connection passwords.")
	fmt.Println("                                  Required for --save, --run and --preview.")
	fmt.Println()

	fmt.Println("EXAMPLES:")
	fmt.Println("  feedctl --save nightly-import.json")
	fmt.Println("  feedctl --run 3f6c1a9e-... ")
	fmt.Println("  feedctl --run 3f6c1a9e-... --rows 2,5,7")
	fmt.Println("  feedctl --preview 3f6c1a9e-... --limit 5")
	fmt.Println("  feedctl --history 3f6c1a9e-... --limit 20")
	fmt.Println("  feedctl --schedule")
}
