package env

import "github.com/roamstake/staking-engine/common/config"

// IsCI returns true if we are in CI mode.
func IsCI() bool {
	return config.GetString("CI", "false") == "true"
}
