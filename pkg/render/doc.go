/*
Package render writes the files consumed by ansible: the inventory, the
playbooks, the hosts file and group_vars/all.yaml.

Templates use text/template. A template found in the share templates
directory wins over the built-in one with the same name, so a deployment can
customize any generated file. Rendering only starts once the variables are
derived and the secrets saved: a failed run leaves the previous files in
place.
*/
package render
