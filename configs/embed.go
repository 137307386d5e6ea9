// Package configs embeds the configuration templates written by
// `mixsearch init`.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .mixsearch.yaml in the project root.
// Every live key must decode cleanly under the strict config loader.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
