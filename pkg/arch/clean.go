package arch

// computedKeys were written into arch.yaml by older releases. They are now
// recomputed on every run.
var computedKeys = []string{
	"domain", "gateway", "gateway_ip", "install", "install_ip",
	"ip_prefix", "roles", "hosts_file",
}

// deploymentKeys are host fields left over from image based deployments
var deploymentKeys = []string{
	"cpu", "disk", "mem", "hostid", "rolesname", "hostname",
}

// Clean upgrades a raw arch.yaml document in place and reports whether it
// changed. The legacy "auth" role becomes "cauth".
func Clean(doc map[string]interface{}) bool {
	dirty := false

	for _, key := range computedKeys {
		if _, ok := doc[key]; ok {
			delete(doc, key)
			dirty = true
		}
	}

	inventory, _ := doc["inventory"].([]interface{})
	for _, entry := range inventory {
		host, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		if roles, ok := host["roles"].([]interface{}); ok {
			renamed := make([]interface{}, 0, len(roles))
			hasAuth := false
			for _, role := range roles {
				if role == "auth" {
					hasAuth = true
					continue
				}
				renamed = append(renamed, role)
			}
			if hasAuth {
				host["roles"] = append(renamed, "cauth")
				dirty = true
			}
		}

		for _, key := range deploymentKeys {
			if _, ok := host[key]; ok {
				delete(host, key)
				dirty = true
			}
		}
	}

	return dirty
}
