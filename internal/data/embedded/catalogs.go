// Package embedded provides access to embedded model catalog data files.
package embedded

import _ "embed"

// ModelCatalogData contains the embedded model catalog YAML data.
//
//go:embed models.yaml
var ModelCatalogData []byte
