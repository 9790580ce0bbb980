package main

import "flag"

// Flags holds all command-line flags
type Flags struct {
	// Commands
	List     *bool
	Save     *string // pipeline config JSON file to validate and store
	Validate *string // pipeline config JSON file to validate only
	Delete   *string
	Run      *string
	Preview  *string
	History  *string
	Errors   *string // execution id to show row errors for
	Schedule *bool

	// Options
	Config  *string
	Dealer  *string
	Rows    *string // row subset for --run, e.g. "2,5,7"
	Limit   *int
	Offset  *int
	AsJSON  *bool

	// Config Creation
	CreateConfig *bool

	// Misc
	Version *bool
	Help    *bool
}

// ParseFlags defines and parses all command-line flags
func ParseFlags() *Flags {
	f := &Flags{}

	// Commands
	f.List = flag.Bool("list", false, "List pipeline configs")
	f.Save = flag.String("save", "", "Validate and store a pipeline config from JSON file (file path)")
	f.Validate = flag.String("validate", "", "Validate a pipeline config JSON file without storing it (file path)")
	f.Delete = flag.String("delete", "", "Delete a pipeline config (config id)")
	f.Run = flag.String("run", "", "Execute a pipeline config now (config id)")
	f.Preview = flag.String("preview", "", "Dry-run an import config without writing to inventory (config id)")
	f.History = flag.String("history", "", "Show execution history (config id, or 'all')")
	f.Errors = flag.String("errors", "", "Show row errors of an execution (execution id)")
	f.Schedule = flag.Bool("schedule", false, "Show next run time of every active config")

	// Options
	f.Config = flag.String("config", "feedbridge.yaml", "Service configuration file path")
	f.Dealer = flag.String("dealer", "", "Filter configs by dealer id")
	f.Rows = flag.String("rows", "", "Import only these 1-based row numbers (comma-separated, use with --run)")
	f.Limit = flag.Int("limit", 0, "Row limit for --preview / --history / --errors")
	f.Offset = flag.Int("offset", 0, "Offset for --history")
	f.AsJSON = flag.Bool("json", false, "Print results as JSON")

	// Config Creation
	f.CreateConfig = flag.Bool("create-config", false, "Create a sample service config file")

	// Misc
	f.Version = flag.Bool("version", false, "Show version information")
	f.Help = flag.Bool("help", false, "Show detailed help with examples")

	flag.Parse()

	return f
}
