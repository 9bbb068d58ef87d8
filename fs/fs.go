package appfs

import "embed"

//go:embed migrations/*.sql assets assets/templates/email/_*
var FS embed.FS
