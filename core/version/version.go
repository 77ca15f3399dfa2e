package version

// Version is set at build time with -ldflags "-X .../core/version.Version=...".
var Version = "dev"
