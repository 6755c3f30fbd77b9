// Package infra contains technical adapters: the branch-and-bound solver
// backend, instance loaders, the MQTT plan publisher, metrics exporters and
// error reporting. These packages depend only on the interfaces defined in
// the core packages.
package infra
