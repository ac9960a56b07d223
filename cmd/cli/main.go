package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	defaultServerURL = "http://localhost:8080"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B"))
	listingStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#334155")).
			Padding(0, 1)
)

func main() {
	var serverURL string
	flag.StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	flag.StringVar(&serverURL, "s", defaultServerURL, "Server URL (short)")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	result := executeCommand(serverURL, joinArgs(flag.Args()))

	if result.Success {
		printSuccess(os.Stdout, result)
		os.Exit(0)
	}
	printError(os.Stderr, result)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Label Dispatch CLI

Usage:
  label-cli [flags] <command>

Flags:
  -s, -server <url>    Server URL (default: %s)

Run "label-cli help" for the list of commands.

Examples:
  label-cli profile add-network 192.168.1.100 9100 --name=dock
  label-cli send dock "^XA^FO50,50^A0N,40,40^FDHello World^FS^XZ"
  label-cli send dock "~HS" --wait
  label-cli print dock ./shipping.zpl --copies=3
  label-cli -s http://printhost:8080 detect

`, defaultServerURL)
}

// CommandResult is the decoded /command response. Keys other than success,
// message and error are collected in Data.
type CommandResult struct {
	Success bool
	Message string
	Error   string
	Data    map[string]interface{}
}

// joinArgs rebuilds the command line, quoting arguments the shell already
// unquoted so the server splits them the same way
func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quoteArg(arg)
	}
	return strings.Join(quoted, " ")
}

func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \"'") {
		return arg
	}
	if !strings.Contains(arg, `"`) {
		return `"` + arg + `"`
	}
	if !strings.Contains(arg, "'") {
		return "'" + arg + "'"
	}
	return arg
}

func executeCommand(serverURL, command string) *CommandResult {
	url := strings.TrimSuffix(serverURL, "/") + "/command"

	jsonData, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to connect to server: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to read response: %v", err)}
	}

	result, err := decodeResult(body)
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to parse response (HTTP %d): %v", resp.StatusCode, err)}
	}
	return result
}

func decodeResult(body []byte) (*CommandResult, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	result := &CommandResult{Data: map[string]interface{}{}}
	for k, v := range raw {
		switch k {
		case "success":
			result.Success, _ = v.(bool)
		case "message":
			result.Message, _ = v.(string)
		case "error":
			result.Error, _ = v.(string)
		default:
			result.Data[k] = v
		}
	}
	return result, nil
}

func printSuccess(w io.Writer, result *CommandResult) {
	if result.Message != "" {
		if strings.Contains(result.Message, "\n") {
			fmt.Fprintln(w, listingStyle.Render(strings.TrimRight(result.Message, "\n")))
		} else {
			fmt.Fprintln(w, successStyle.Render(result.Message))
		}
	}

	data := result.Data
	if profiles, ok := data["profiles"].([]interface{}); ok {
		printTable(w, "Profiles", profiles, "id", "name", "type", "target")
	}
	if devices, ok := data["usb_devices"].([]interface{}); ok {
		printTable(w, "USB devices", devices, "vendor_id", "product_id", "serial_number", "path")
	}
	if ports, ok := data["serial_ports"].([]interface{}); ok {
		printTable(w, "Serial ports", ports, "name", "is_usb", "vendor_id", "product_id")
	}
	if queues, ok := data["queues"].([]interface{}); ok {
		printTable(w, "Print queues", queues, "name", "port_name")
	}

	if id, ok := data["profile_id"].(string); ok {
		fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("Profile ID:"), id)
	}
	if sent, ok := data["bytes_sent"].(float64); ok {
		fmt.Fprintf(w, "%s %.0f\n", mutedStyle.Render("Bytes sent:"), sent)
	}
	if free, ok := data["free_bytes"].(float64); ok {
		fmt.Fprintf(w, "%s %.0f\n", mutedStyle.Render("Free bytes:"), free)
	}

	var warnings []string
	for k, v := range data {
		if strings.HasSuffix(k, "_error") {
			warnings = append(warnings, fmt.Sprintf("%s: %v", strings.TrimSuffix(k, "_error"), v))
		}
	}
	sort.Strings(warnings)
	for _, warning := range warnings {
		fmt.Fprintln(w, errorStyle.Render("Warning: ")+warning)
	}
}

func printTable(w io.Writer, title string, rows []interface{}, columns ...string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d)", title, len(rows))))
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  none"))
		return
	}

	for _, r := range rows {
		row, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			v, ok := row[col]
			if !ok || v == nil || v == "" {
				cells = append(cells, mutedStyle.Render("-"))
				continue
			}
			cells = append(cells, formatCell(v))
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(cells, "  "))
	}
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("%.0f", val)
	case bool:
		if val {
			return "yes"
		}
		return "no"
	default:
		return fmt.Sprint(val)
	}
}

func printError(w io.Writer, result *CommandResult) {
	switch {
	case result.Error != "":
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Error:"), result.Error)
	case result.Message != "":
		fmt.Fprintln(w, result.Message)
	}
}
