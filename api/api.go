// Package api carries the OpenAPI description of the espalier HTTP surface.
// The document is embedded so the server can publish its own contract and
// tests can check the routing table against it.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
