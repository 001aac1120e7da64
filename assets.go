// Package mailrun embeds web assets served by the HTTP surface.
package mailrun

import "embed"

// WebFS holds the dashboard and upload form templates.
//
//go:embed web/templates
var WebFS embed.FS
