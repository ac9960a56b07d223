package command

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/thereceipt/label-dispatch/internal/printer"
	"github.com/thereceipt/label-dispatch/internal/registry"
)

func (e *Executor) lookup(ref string) (*registry.ProfileEntry, *Result) {
	entry := e.registry.Resolve(ref)
	if entry == nil {
		return nil, failed("profile not found: %s", ref)
	}
	return entry, nil
}

// dispatch sends commands to a saved profile honoring --wait and --copies
func (e *Executor) dispatch(entry *registry.ProfileEntry, commands string, flags map[string]string) *Result {
	profile := entry.Profile
	if v, ok := flags["copies"]; ok {
		copies, err := strconv.Atoi(v)
		if err != nil || copies < 1 {
			return failed("invalid copies: %s", v)
		}
		profile.Copies = copies
	}
	_, wait := flags["wait"]

	res, err := e.dispatcher.Dispatch(commands, profile, wait)
	if err != nil {
		return failed("%v", err)
	}

	data := ResultData(res)
	data["profile_id"] = entry.ID
	if !res.Success {
		return &Result{
			Success: false,
			Error:   res.Message,
			Data:    data,
		}
	}

	message := fmt.Sprintf("Sent %d byte(s) to %s", res.BytesSent, displayName(entry))
	if res.Message != "" {
		message += "\n" + strings.ReplaceAll(res.Message, "\r", "\n")
	}
	return &Result{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func displayName(entry *registry.ProfileEntry) string {
	if entry.Name != "" {
		return entry.Name
	}
	return entry.Profile.Target()
}

// handleSend handles send commands
// Usage: send <profile> <commands> [--wait] [--copies=N]
func (e *Executor) handleSend(args []string) *Result {
	positional, flags := splitFlags(args)
	if len(positional) < 2 {
		return failed("usage: send <profile> <commands> [--wait] [--copies=N]")
	}

	entry, res := e.lookup(positional[0])
	if res != nil {
		return res
	}
	return e.dispatch(entry, strings.Join(positional[1:], " "), flags)
}

// handlePrint handles print commands
// Usage: print <profile> <file-path|url> [--wait] [--copies=N]
func (e *Executor) handlePrint(args []string) *Result {
	positional, flags := splitFlags(args)
	if len(positional) < 2 {
		return failed("usage: print <profile> <file-path|url> [--wait] [--copies=N]")
	}

	entry, res := e.lookup(positional[0])
	if res != nil {
		return res
	}

	commands, err := LoadCommands(positional[1])
	if err != nil {
		return failed("failed to load commands: %v", err)
	}
	return e.dispatch(entry, commands, flags)
}

// handleProfile handles profile commands
// Usage: profile list | add-usb <printer> | add-driver <printer> | add-network <host> [port] |
// add-serial <port> [baud] | add-parallel <port> | rename <id> <name> | remove <id>
func (e *Executor) handleProfile(rawArgs []string) *Result {
	args, flags := splitFlags(rawArgs)
	if len(args) == 0 {
		return failed("usage: profile <list|add-usb|add-driver|add-network|add-serial|add-parallel|rename|remove>")
	}

	subcommand := args[0]

	switch subcommand {
	case "list":
		entries := e.registry.GetAll()
		profiles := make([]map[string]interface{}, len(entries))
		for i, entry := range entries {
			profiles[i] = map[string]interface{}{
				"id":     entry.ID,
				"name":   entry.Name,
				"type":   entry.Profile.CommunicationType.String(),
				"target": entry.Profile.Target(),
			}
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Found %d profile(s)", len(entries)),
			Data: map[string]interface{}{
				"profiles": profiles,
			},
		}

	case "add-usb", "add-driver":
		if len(args) < 2 {
			return failed("usage: profile %s <printer-name>", subcommand)
		}
		profile := printer.NewUSBProfile(args[1])
		if subcommand == "add-driver" {
			profile = printer.NewDriverProfile(args[1])
		}
		return e.addProfile(profile, flags)

	case "add-network":
		if len(args) < 2 {
			return failed("usage: profile add-network <host> [port]")
		}
		port := printer.DefaultNetworkPort
		if len(args) >= 3 {
			var err error
			port, err = strconv.Atoi(args[2])
			if err != nil {
				return failed("invalid port: %s", args[2])
			}
		}
		return e.addProfile(printer.NewNetworkProfile(args[1], port), flags)

	case "add-serial":
		if len(args) < 2 {
			return failed("usage: profile add-serial <port> [baud]")
		}
		baud := printer.DefaultSerialBaudRate
		if len(args) >= 3 {
			var err error
			baud, err = strconv.Atoi(args[2])
			if err != nil {
				return failed("invalid baud rate: %s", args[2])
			}
		}
		profile := printer.NewSerialProfile(args[1], baud, printer.StopBitsOne, printer.DefaultSerialDataBits, printer.FlowXOnXOff, printer.ParityNone)
		return e.addProfile(profile, flags)

	case "add-parallel":
		if len(args) < 2 {
			return failed("usage: profile add-parallel <port>")
		}
		return e.addProfile(printer.NewParallelProfile(args[1], 1), flags)

	case "rename":
		if len(args) < 3 {
			return failed("usage: profile rename <id> <name>")
		}
		profileID := args[1]
		name := args[2]
		if !e.registry.SetName(profileID, name) {
			return failed("profile not found: %s", profileID)
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Renamed profile %s to %s", profileID, name),
		}

	case "remove":
		if len(args) < 2 {
			return failed("usage: profile remove <id>")
		}
		if !e.registry.Remove(args[1]) {
			return failed("profile not found: %s", args[1])
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Removed profile %s", args[1]),
		}

	default:
		return failed("unknown profile subcommand: %s. Use: list, add-usb, add-driver, add-network, add-serial, add-parallel, rename, remove", subcommand)
	}
}

// addProfile validates and stores profile; --name=<name> sets a custom name
func (e *Executor) addProfile(profile printer.ConnectionProfile, flags map[string]string) *Result {
	if err := profile.Validate(); err != nil {
		return failed("invalid profile: %v", err)
	}

	profileID := e.registry.Register(profile, flags["name"])
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Saved %s profile: %s", profile.CommunicationType, profile.Target()),
		Data: map[string]interface{}{
			"profile_id": profileID,
			"profile":    profile,
		},
	}
}

// handleMemory handles memory commands
// Usage: memory <profile> [A|B|E|R]
func (e *Executor) handleMemory(args []string) *Result {
	if len(args) == 0 {
		return failed("usage: memory <profile> [A|B|E|R]")
	}

	entry, res := e.lookup(args[0])
	if res != nil {
		return res
	}

	memory := printer.MemoryFlash
	if len(args) >= 2 {
		var err error
		memory, err = printer.ParseMemoryType(args[1])
		if err != nil {
			return failed("%v", err)
		}
	}

	listing, err := e.dispatcher.ListMemory(entry.Profile, memory)
	if err != nil {
		return failed("memory query failed: %v", err)
	}

	data := map[string]interface{}{
		"memory":  memory.String(),
		"listing": listing,
	}
	message := strings.ReplaceAll(listing, "\r", "\n")
	if free, err := printer.ParseFreeMemory(listing); err == nil {
		data["free_bytes"] = free
	}

	return &Result{
		Success: true,
		Message: message,
		Data:    data,
	}
}

// handleDetect handles detect command
// Usage: detect
func (e *Executor) handleDetect(args []string) *Result {
	devices, usbErr := e.dispatcher.UsbDevices()
	ports, serialErr := e.serialPorts()
	queues, _ := e.dispatcher.InstalledPrinters()

	if usbErr != nil && serialErr != nil {
		return failed("detection failed: %v; %v", usbErr, serialErr)
	}

	data := map[string]interface{}{
		"usb_devices":  devices,
		"serial_ports": ports,
		"queues":       queues,
	}
	if usbErr != nil {
		data["usb_error"] = usbErr.Error()
	}
	if serialErr != nil {
		data["serial_error"] = serialErr.Error()
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Detected %d USB device(s), %d serial port(s)", len(devices), len(ports)),
		Data:    data,
	}
}

// handleHelp handles help command
func (e *Executor) handleHelp(args []string) *Result {
	helpText := `Available Commands:

  send <profile> <commands> [--wait] [--copies=N]
    Send printer commands to a saved profile (id or name)

  print <profile> <file-path|url> [--wait] [--copies=N]
    Send the contents of a file or URL to a saved profile

  profile list
    List saved profiles

  profile add-usb <printer-name> [--name=<name>]
  profile add-driver <printer-name> [--name=<name>]
  profile add-network <host> [port] [--name=<name>]
  profile add-serial <port> [baud] [--name=<name>]
  profile add-parallel <port> [--name=<name>]
    Save a connection profile (network port defaults to 9100)

  profile rename <id> <name>
    Set a custom name for a profile

  profile remove <id>
    Delete a profile

  memory <profile> [A|B|E|R]
    List printer memory and report free bytes (default E)

  detect
    List USB devices, serial ports and print queues

  help
    Show this help message

Examples:
  profile add-network 192.168.1.100 9100 --name=dock
  send dock "^XA^FO50,50^A0N,40,40^FDHello^FS^XZ"
  send dock "~HS" --wait
  print dock ./shipping.zpl --copies=3
  memory dock E
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}

// LoadCommands reads a command file from a local path or an http(s) URL
func LoadCommands(pathOrURL string) (string, error) {
	if !strings.HasPrefix(pathOrURL, "http://") && !strings.HasPrefix(pathOrURL, "https://") {
		data, err := os.ReadFile(pathOrURL)
		if err != nil {
			return "", fmt.Errorf("failed to read command file: %w", err)
		}
		return string(data), nil
	}

	resp, err := http.Get(pathOrURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch commands from URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch commands: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read commands from URL: %w", err)
	}
	return string(data), nil
}
