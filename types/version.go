package types

// Version is the canonical project version.
// The CLI and the session wire surface share this version
// per the lockstep versioning policy.
const Version = "0.2.0"
