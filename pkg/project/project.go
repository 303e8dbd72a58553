package project

// Name is reported as serverInfo/clientInfo name on every protocol connection.
const Name = "annols"

// Version is overridden at build time with -ldflags "-X github.com/averycrespi/annols/pkg/project.Version=...".
var Version = "0.1.0"
