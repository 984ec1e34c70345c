// Package deriver computes the group variables of a deployment from its
// resolved architecture and site configuration. Secrets and key material are
// fetched or created on the way, so a second run yields the same values.
package deriver
