package strand

// Version is the library and CLI version, overridable at build time with
// -ldflags "-X github.com/corvid-labs/strand.Version=...".
var Version = "0.1.0"
