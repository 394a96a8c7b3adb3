// Package schemas embeds the JSON Schemas for catalogs and HUD frames.
package schemas

import "embed"

//go:embed *.schema.json
var FS embed.FS
