package config

// Version is the megacmd release, overridden at build time with
// -ldflags "-X github.com/cshum/megacmd/internal/config.Version=...".
var Version = "2.1.0"
