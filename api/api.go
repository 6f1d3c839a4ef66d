// Package api carries the OpenAPI description served by the Swagger UI.
package api

import _ "embed"

//go:embed openapi.json
var OpenAPISpec []byte
