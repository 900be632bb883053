package app

// Command selects the process topology the binary runs as.
type Command string

const (
	// CommandServe runs the HTTP API server.
	CommandServe Command = "serve"
	// CommandWorker runs the fan-out worker pool.
	CommandWorker Command = "worker"
	// CommandMigrate applies database migrations and exits.
	CommandMigrate Command = "migrate"
	// CommandHealthcheck probes the running server over loopback.
	// Used as the Docker healthcheck in distroless images.
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand resolves the subcommand from command-line arguments.
// Empty or unrecognized arguments default to CommandServe.
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
