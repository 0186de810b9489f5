package uci

import (
	"fmt"
	"strings"
)

// Outbound commands.
const (
	CmdUCI     = "uci"
	CmdIsReady = "isready"
	CmdNewGame = "ucinewgame"
	CmdStop    = "stop"
	CmdQuit    = "quit"
)

// Position returns the "position fen" command for fen.
func Position(fen string) string {
	return "position fen " + strings.TrimSpace(fen)
}

// GoDepth returns the "go depth" command.
func GoDepth(depth int) string {
	return fmt.Sprintf("go depth %d", depth)
}

// SetOption returns a "setoption" command.
func SetOption(name string, value any) string {
	return fmt.Sprintf("setoption name %s value %v", name, value)
}
