package tui

import (
	"fmt"
	"strings"

	"github.com/matheus3301/msgsync/internal/target"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	switch cmd.Name {
	case "o":
		cmd.Name = "open"
	case "h":
		cmd.Name = "help"
	case "q":
		cmd.Name = "quit"
	}
	return cmd
}

// Target resolves the argument of :open. Besides "conversation:7" and
// "user:42", the shorthands "c7" and "u42" are accepted.
func (c Command) Target() (target.Target, error) {
	arg := strings.ToLower(c.Args)
	if arg == "" {
		return target.Target{}, fmt.Errorf("%s: missing target", c.Name)
	}
	if !strings.Contains(arg, ":") && len(arg) > 1 {
		switch arg[0] {
		case 'c':
			arg = "conversation:" + arg[1:]
		case 'u':
			arg = "user:" + arg[1:]
		}
	}
	return target.Parse(arg)
}
