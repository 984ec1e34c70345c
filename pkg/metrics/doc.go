/*
Package metrics records what an sfconfig run did: roles derived, secrets
generated, key material requested and how long each phase took.

sfconfig is a one-shot command, nothing is served over HTTP. The metrics
live in a dedicated Registry and WriteTextfile dumps them for the node
exporter textfile collector:

	timer := metrics.NewTimer()
	...
	timer.ObservePhase("derive")
	metrics.SecretsGenerated.Add(float64(len(store.Generated())))
	err := metrics.WriteTextfile("/var/lib/node_exporter/textfile/sfconfig.prom")
*/
package metrics
