package render

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/softwarefactory-project/sfconfig/pkg/arch"
	"github.com/softwarefactory-project/sfconfig/pkg/inventory"
	"github.com/softwarefactory-project/sfconfig/pkg/log"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
	"gopkg.in/yaml.v3"
)

// Playbooks rendered next to the inventory. The install and setup playbooks
// have built-in templates, the others are only rendered when the template
// directory provides them.
var (
	RequiredPlaybooks = []string{"sf_install", "sf_setup"}
	OptionalPlaybooks = []string{"sf_postconf", "sf_configrepo_update", "get_logs", "sf_backup", "sf_restore"}
)

// LegacyMarker separates the derived variables from the raw configuration in
// the group vars file
const LegacyMarker = "###### Legacy content ######\n"

// Data is what the deployment templates see
type Data struct {
	*inventory.Inventory
	HostsLines      []string
	StaticHostnames []string
}

// Deployment lists the files generated for one architecture
type Deployment struct {
	AnsibleRoot string
	// HostsFile is the /etc/hosts path, skipped when empty
	HostsFile string
	// ServerspecFile is skipped when empty or without template
	ServerspecFile string
}

// NewData returns the template data of a
func NewData(a *types.Architecture, site *types.SiteConfig) *Data {
	data := &Data{
		Inventory:  inventory.Build(a),
		HostsLines: arch.HostsFile(a),
	}
	if site != nil {
		data.StaticHostnames = site.Network.StaticHostnames
	}
	return data
}

// Render writes the inventory, the playbooks and the hosts files
func (d Deployment) Render(r Renderer, data *Data) error {
	if err := r.Render(filepath.Join(d.AnsibleRoot, "hosts"), "inventory.tmpl", data); err != nil {
		return err
	}

	for _, name := range RequiredPlaybooks {
		if err := r.Render(filepath.Join(d.AnsibleRoot, name+".yml"), name+".yml.tmpl", data); err != nil {
			return err
		}
	}
	for _, name := range OptionalPlaybooks {
		if err := renderOptional(r, filepath.Join(d.AnsibleRoot, name+".yml"), name+".yml.tmpl", data); err != nil {
			return err
		}
	}

	if d.ServerspecFile != "" {
		if err := renderOptional(r, d.ServerspecFile, "serverspec.yml.tmpl", data); err != nil {
			return err
		}
	}
	if d.HostsFile != "" {
		if err := r.Render(d.HostsFile, "etc-hosts.tmpl", data); err != nil {
			return err
		}
	}
	return nil
}

func renderOptional(r Renderer, dest, name string, data interface{}) error {
	err := r.Render(dest, name, data)
	if errors.Is(err, ErrTemplateNotFound) {
		logger := log.WithComponent("render")
		logger.Debug().Str("template", name).Msg("No template, skipping")
		return nil
	}
	return err
}

// GroupVars is the content of group_vars/all.yaml
type GroupVars struct {
	Secrets map[string]string
	Vars    types.VariableSet
	// Legacy is the raw sfconfig.yaml, Extra the raw custom vars file
	Legacy []byte
	Extra  []byte
	Arch   interface{}
}

// WriteGroupVars writes the group vars file. It holds every secret and is
// only readable by its owner.
func WriteGroupVars(path string, gv GroupVars) error {
	var buf bytes.Buffer

	// An empty mapping would be dumped as {} in the middle of the document
	if len(gv.Secrets) > 0 {
		if err := encodeYAML(&buf, gv.Secrets); err != nil {
			return err
		}
	}
	if len(gv.Vars) > 0 {
		if err := encodeYAML(&buf, gv.Vars); err != nil {
			return err
		}
	}

	buf.WriteString(LegacyMarker)
	for _, raw := range [][]byte{gv.Legacy, gv.Extra} {
		if len(raw) == 0 {
			continue
		}
		buf.Write(raw)
		if !bytes.HasSuffix(raw, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}

	if gv.Arch != nil {
		if err := encodeYAML(&buf, gv.Arch); err != nil {
			return err
		}
	}

	if err := writeFile(path, buf.Bytes(), 0600); err != nil {
		return err
	}
	logger := log.WithComponent("render")
	logger.Info().Str("path", path).Msg("Group vars written")
	return nil
}

func encodeYAML(buf *bytes.Buffer, v interface{}) error {
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode group vars: %w", err)
	}
	return enc.Close()
}
