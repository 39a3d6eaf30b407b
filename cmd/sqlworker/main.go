// Command sqlworker is a CLI front for the serialized SQLite worker.
//
// It executes ad-hoc statements, applies migrations and reports engine
// status against a database configured in configs/config.yaml.
package main

func main() {
	Execute()
}
