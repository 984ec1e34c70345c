/*
Package config loads and upgrades the site configuration files.

sfconfig.yaml is edited by operators and survives upgrades of the
deployment, so its schema is migrated in place by Upgrade before it is
decoded. Save keeps the previous content as <path>.orig.

	doc, err := config.Load(path)
	...
	dirty, err := config.Upgrade(doc, filepath.Dir(path))
	...
	if dirty {
		err = config.Save(path, doc)
	}
	site, err := config.Decode(doc)

Role defaults come from the sf-<role> ansible roles of the share directory,
over a small built-in set holding the service ports.
*/
package config
