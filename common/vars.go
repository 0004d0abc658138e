package common

// Version is set at build time with -ldflags "-X github.com/ruteri/certificate-ledger/common.Version=..."
var Version = "dev"

// PackageName prefixes metric names and tags logs.
const PackageName = "certificate-ledger"
