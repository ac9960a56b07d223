// Package command provides the text command system shared by the API and the CLI
package command

import (
	"fmt"
	"strings"

	"github.com/thereceipt/label-dispatch/internal/printer"
	"github.com/thereceipt/label-dispatch/internal/registry"
)

// Executor executes commands
type Executor struct {
	dispatcher  *printer.Dispatcher
	registry    *registry.Registry
	serialPorts func() ([]printer.SerialPort, error)
}

// NewExecutor creates a new command executor
func NewExecutor(dispatcher *printer.Dispatcher, reg *registry.Registry) *Executor {
	return &Executor{
		dispatcher:  dispatcher,
		registry:    reg,
		serialPorts: printer.ListSerialPorts,
	}
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func failed(format string, args ...interface{}) *Result {
	return &Result{
		Success: false,
		Error:   fmt.Sprintf(format, args...),
	}
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return failed("empty command")
	}

	command := parts[0]
	args := parts[1:]

	switch command {
	case "send":
		return e.handleSend(args)
	case "print":
		return e.handlePrint(args)
	case "profile":
		return e.handleProfile(args)
	case "memory":
		return e.handleMemory(args)
	case "detect":
		return e.handleDetect(args)
	case "help":
		return e.handleHelp(args)
	default:
		return failed("unknown command: %s. Type 'help' for available commands", command)
	}
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if char == ' ' && !inQuotes {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

// splitFlags separates --flag and --flag=value arguments from positional ones
func splitFlags(args []string) ([]string, map[string]string) {
	var positional []string
	flags := make(map[string]string)
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			positional = append(positional, arg)
			continue
		}
		name, value, _ := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		flags[name] = value
	}
	return positional, flags
}

// ResultData converts a dispatch result for command and API responses
func ResultData(res *printer.Result) map[string]interface{} {
	data := map[string]interface{}{
		"success":    res.Success,
		"bytes_sent": res.BytesSent,
	}
	if res.Message != "" {
		data["message"] = res.Message
	}
	if res.BytesReceived > 0 {
		data["bytes_received"] = res.BytesReceived
	}
	return data
}
