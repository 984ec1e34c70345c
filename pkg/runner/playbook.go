package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/softwarefactory-project/sfconfig/pkg/log"
)

const (
	// InstallPlaybook installs packages on every host
	InstallPlaybook = "sf_install.yml"
	// SetupPlaybook configures the services
	SetupPlaybook = "sf_setup.yml"
)

// Playbooks runs the generated install and setup playbooks
type Playbooks struct {
	// Root is the directory holding the generated playbooks
	Root string

	SkipInstall bool
	SkipSetup   bool

	Executor Executor
}

// Run executes the install then the setup phase, honoring the skip switches.
// The first failure aborts the run.
func (p *Playbooks) Run(ctx context.Context) error {
	logger := log.WithComponent("playbooks")

	phases := []struct {
		name     string
		playbook string
		skip     bool
	}{
		{"install", InstallPlaybook, p.SkipInstall},
		{"setup", SetupPlaybook, p.SkipSetup},
	}

	for _, phase := range phases {
		if phase.skip {
			logger.Info().Str("phase", phase.name).Msg("Skipping phase")
			continue
		}

		path := filepath.Join(p.Root, phase.playbook)
		logger.Info().Str("phase", phase.name).Str("playbook", path).Msg("Running playbook")
		if err := p.Executor.Run(ctx, "ansible-playbook", path); err != nil {
			return fmt.Errorf("%s phase failed: %w", phase.name, err)
		}
	}

	return nil
}
