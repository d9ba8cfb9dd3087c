package ui

import (
	"fmt"
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdSend commandKind = iota
	cmdDirect
	cmdGroup
	cmdAdd
	cmdImage
	cmdSave
	cmdLogout
	cmdHelp
)

// command is one parsed line from the input box.
type command struct {
	kind    commandKind
	arg     string // text, name or path
	mediaID int64  // cmdSave only
}

// parseCommand turns an input line into a command. Lines that do not start
// with "/" are messages; "//" escapes a leading slash.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "//") {
		return command{kind: cmdSend, arg: line[1:]}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, arg: line}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	need := func(kind commandKind, usage string) (command, error) {
		if rest == "" {
			return command{}, fmt.Errorf("usage: %s", usage)
		}
		return command{kind: kind, arg: rest}, nil
	}

	switch strings.ToLower(name) {
	case "dm", "msg":
		return need(cmdDirect, "/dm <name>")
	case "group":
		return need(cmdGroup, "/group <name>")
	case "add":
		return need(cmdAdd, "/add <username>")
	case "img", "image":
		return need(cmdImage, "/img <path>")
	case "save":
		idText, path, _ := strings.Cut(rest, " ")
		path = strings.TrimSpace(path)
		id, err := strconv.ParseInt(idText, 10, 64)
		if err != nil || id <= 0 || path == "" {
			return command{}, fmt.Errorf("usage: /save <image id> <path>")
		}
		return command{kind: cmdSave, arg: path, mediaID: id}, nil
	case "logout":
		return command{kind: cmdLogout}, nil
	case "help":
		return command{kind: cmdHelp}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s (try /help)", name)
	}
}
