package version

// Overridden at build time with -ldflags "-X genie/internal/version.VERSION=...".
var (
	VERSION = "dev"
	COMMIT  = "unknown"
)
