package arch

import (
	"fmt"
	"strings"

	"github.com/softwarefactory-project/sfconfig/pkg/types"
)

// HostsFile returns /etc/hosts lines for the architecture, one per address,
// in inventory order
func HostsFile(a *types.Architecture) []string {
	var lines []string
	done := make(map[string]bool)
	for _, h := range a.Inventory {
		if done[h.IP] {
			continue
		}
		done[h.IP] = true
		lines = append(lines, fmt.Sprintf("%s %s", h.IP, strings.Join(a.HostsFile[h.IP], " ")))
	}
	return lines
}
