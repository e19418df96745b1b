package staking

import "github.com/roamstake/staking-engine/database/models"

// AllModels collects available models.
var AllModels = []interface{}{
	&models.System{},

	&Stake{},
}
