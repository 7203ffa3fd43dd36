package globals

import "github.com/hashicorp/go-hclog"

// AppLogger is the process-wide logger. Components derive named sub-loggers from it.
var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "lightspeed-pagechat",
	Level: hclog.LevelFromString("INFO"),
})

const (
	// DefaultRoomId is the reserved room that is never removed from the directory.
	DefaultRoomId = "lobby"
)
