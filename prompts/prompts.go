// Package prompts embeds the default instruction template for each analysis mode.
package prompts

import "embed"

//go:embed *.txt
var FS embed.FS
