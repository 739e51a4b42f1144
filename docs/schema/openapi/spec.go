// Package openapi embeds the OpenAPI description of the crosswalk HTTP API.
package openapi

import _ "embed"

// CrosswalkSpec contains the OpenAPI document served at /api/v1/openapi.yaml.
//
//go:embed crosswalk.yaml
var CrosswalkSpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), CrosswalkSpec...)
}
