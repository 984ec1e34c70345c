/*
Package log provides structured logging for sfconfig using zerolog.

The package wraps a single global zerolog.Logger, initialized once from the
command line flags, plus helpers creating child loggers that carry context
fields (component, role, host).

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.ParseLevel("debug"),
		JSONOutput: false,
	})

Component Loggers:

	logger := log.WithComponent("deriver")
	logger.Info().Str("role", "gerrit").Msg("Derived role variables")

Output goes to stderr by default: the resolve, hosts and vars subcommands
print YAML on stdout and must not be interleaved with log lines.

# Log Content

Never log secret values. Secret and key names are fine:

	logger.Info().Str("secret", name).Msg("Generated secret")
*/
package log
