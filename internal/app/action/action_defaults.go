package action

import "github.com/MaxxisHub/game-server-wol/internal/config"

var (
	defaultConfigPath  = config.DefaultPath
	defaultConsoleAddr = "127.0.0.1:9137"
)
