package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereceipt/label-dispatch/internal/printer"
)

type profileRequest struct {
	Name    string                     `json:"name"`
	Profile *printer.ConnectionProfile `json:"profile" binding:"required"`
}

type dispatchRequest struct {
	ProfileID       string                     `json:"profile_id"`
	Profile         *printer.ConnectionProfile `json:"profile"`
	Commands        string                     `json:"commands"`
	WaitForResponse bool                       `json:"wait_for_response"`
	Copies          int                        `json:"copies"`
}

type rawRequest struct {
	PrinterName string `json:"printer_name" binding:"required"`
	Data        []byte `json:"data"` // base64 in JSON
	Text        string `json:"text"`
	Path        string `json:"path"`
}

var errProfileNotFound = errors.New("profile not found")

// handleGetProfiles returns all saved profiles
func (s *Server) handleGetProfiles(c *gin.Context) {
	c.JSON(200, gin.H{
		"profiles": s.registry.GetAll(),
	})
}

// handleGetProfile returns one profile by ID or name
func (s *Server) handleGetProfile(c *gin.Context) {
	entry := s.registry.Resolve(c.Param("id"))
	if entry == nil {
		c.JSON(404, gin.H{"error": errProfileNotFound.Error()})
		return
	}
	c.JSON(200, entry)
}

// handleAddProfile saves a profile, reusing the ID of a known target
func (s *Server) handleAddProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := req.Profile.Validate(); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	profileID := s.registry.Register(*req.Profile, req.Name)

	c.JSON(200, gin.H{
		"success":    true,
		"profile_id": profileID,
		"profile":    s.registry.Get(profileID),
	})
}

// handleUpdateProfile replaces the settings of a profile
func (s *Server) handleUpdateProfile(c *gin.Context) {
	var profile printer.ConnectionProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if err := profile.Validate(); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	profileID := c.Param("id")
	if s.registry.Get(profileID) == nil {
		c.JSON(404, gin.H{"error": errProfileNotFound.Error()})
		return
	}
	if !s.registry.Update(profileID, profile) {
		c.JSON(409, gin.H{"error": "another profile already targets this printer"})
		return
	}

	c.JSON(200, gin.H{"success": true, "profile": s.registry.Get(profileID)})
}

// handleSetProfileName sets a custom name for a profile
func (s *Server) handleSetProfileName(c *gin.Context) {
	profileID := c.Param("id")

	var req struct {
		Name string `json:"name" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "name is required"})
		return
	}

	if !s.registry.SetName(profileID, req.Name) {
		c.JSON(404, gin.H{"error": errProfileNotFound.Error()})
		return
	}

	c.JSON(200, gin.H{"success": true})
}

// handleRemoveProfile deletes a profile
func (s *Server) handleRemoveProfile(c *gin.Context) {
	if !s.registry.Remove(c.Param("id")) {
		c.JSON(404, gin.H{"error": errProfileNotFound.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// resolveProfile picks the inline profile or looks the saved one up
func (s *Server) resolveProfile(req *dispatchRequest) (printer.ConnectionProfile, error) {
	var profile printer.ConnectionProfile
	switch {
	case req.Profile != nil:
		profile = *req.Profile
	case req.ProfileID != "":
		entry := s.registry.Resolve(req.ProfileID)
		if entry == nil {
			return profile, fmt.Errorf("%w: %s", errProfileNotFound, req.ProfileID)
		}
		profile = entry.Profile
	default:
		return profile, errors.New("profile or profile_id is required")
	}

	if req.Copies > 0 {
		profile.Copies = req.Copies
	}
	return profile, nil
}

// dispatch runs one request and maps the outcome to an HTTP status: 200 on
// success, 400 for a request no transport can serve, 502 when the printer
// side failed
func (s *Server) dispatch(req *dispatchRequest) (int, gin.H) {
	profile, err := s.resolveProfile(req)
	if err != nil {
		status := 400
		if errors.Is(err, errProfileNotFound) {
			status = 404
		}
		return status, gin.H{"success": false, "error": err.Error()}
	}

	result, err := s.dispatcher.Dispatch(req.Commands, profile, req.WaitForResponse)
	if err != nil {
		return 400, gin.H{"success": false, "error": err.Error()}
	}

	status := 200
	if !result.Success {
		status = http.StatusBadGateway
	}
	return status, gin.H{
		"success":        result.Success,
		"message":        result.Message,
		"bytes_sent":     result.BytesSent,
		"bytes_received": result.BytesReceived,
	}
}

// handleDispatch sends commands to an inline or saved profile
func (s *Server) handleDispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	status, body := s.dispatch(&req)
	c.JSON(status, body)
}

// handleRaw submits a print-ready payload to an OS print queue
func (s *Server) handleRaw(c *gin.Context) {
	var req rawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "printer_name is required"})
		return
	}

	raw := s.dispatcher.RawQueue()
	var result *printer.Result
	switch {
	case len(req.Data) > 0:
		result = raw.SendBytes(req.PrinterName, req.Data)
	case req.Text != "":
		result = raw.SendString(req.PrinterName, req.Text)
	case req.Path != "":
		result = raw.SendFile(req.PrinterName, req.Path)
	default:
		c.JSON(400, gin.H{"error": "data, text or path is required"})
		return
	}

	status := 200
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

// handleMemory lists a printer memory device and its free space
func (s *Server) handleMemory(c *gin.Context) {
	entry := s.registry.Resolve(c.Param("id"))
	if entry == nil {
		c.JSON(404, gin.H{"error": errProfileNotFound.Error()})
		return
	}

	memory := printer.MemoryFlash
	if t := c.Query("type"); t != "" {
		var err error
		memory, err = printer.ParseMemoryType(t)
		if err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
	}

	listing, err := s.dispatcher.ListMemory(entry.Profile, memory)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"memory": memory.String(), "listing": listing}
	if free, err := printer.ParseFreeMemory(listing); err == nil {
		body["free_bytes"] = free
	}
	c.JSON(200, body)
}

// handleUsbDevices lists attached USB devices
func (s *Server) handleUsbDevices(c *gin.Context) {
	devices, err := s.dispatcher.UsbDevices()
	body := gin.H{"devices": devices}
	if err != nil {
		if len(devices) == 0 {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		body["warning"] = err.Error()
	}
	c.JSON(200, body)
}

// handleSerialPorts lists serial ports
func (s *Server) handleSerialPorts(c *gin.Context) {
	ports, err := s.serialPorts()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"ports": ports})
}

// handleQueues lists installed print queues
func (s *Server) handleQueues(c *gin.Context) {
	queues, err := s.dispatcher.InstalledPrinters()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"queues": queues})
}

// handleEvents returns recently published events
func (s *Server) handleEvents(c *gin.Context) {
	events, err := s.history.History(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"events": events})
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "command is required"})
		return
	}

	result := s.executor.Execute(req.Command)

	if result.Success {
		response := gin.H{
			"success": true,
		}
		if result.Message != "" {
			response["message"] = result.Message
		}
		for k, v := range result.Data {
			response[k] = v
		}
		c.JSON(200, response)
	} else {
		c.JSON(400, gin.H{
			"success": false,
			"error":   result.Error,
		})
	}
}
