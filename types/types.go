package types

// AppType specifies app type.
type AppType string

// Staking AppType enums.
const (
	Staking AppType = "staking"
)

// SysVar specifies the system variables.
type SysVar string

// SysVarSchemaVersion SysVar enums.
const (
	SysVarSchemaVersion SysVar = "schema_version"
)
