// Package registry manages persistent printer connection profiles and their
// custom names
package registry

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/thereceipt/label-dispatch/internal/printer"
)

// Registry stores connection profiles keyed by the printer they target
type Registry struct {
	filePath string
	data     map[string]*ProfileEntry
	mu       sync.RWMutex
	log      logrus.FieldLogger
}

// ProfileEntry stores one saved printer target
type ProfileEntry struct {
	ID          string                    `json:"id"`
	IdentityKey string                    `json:"identity_key"`
	Name        string                    `json:"name,omitempty"` // Custom user-set name
	Profile     printer.ConnectionProfile `json:"profile"`
}

// New creates a Registry backed by filePath
func New(filePath string, log logrus.FieldLogger) (*Registry, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Registry{
		filePath: filePath,
		data:     make(map[string]*ProfileEntry),
		log:      log,
	}

	if err := r.load(); err != nil {
		// If file doesn't exist, that's okay - we'll create it on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
	}

	return r, nil
}

// Register gets or creates the ID for the printer profile targets. A known
// target keeps its ID and takes the new settings; a non-empty name replaces the
// stored one.
func (r *Registry) Register(profile printer.ConnectionProfile, name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	identityKey := generateIdentityKey(profile)

	if entry, exists := r.data[identityKey]; exists {
		entry.Profile = profile
		if name != "" {
			entry.Name = name
		}
		r.persist()
		return entry.ID
	}

	entry := &ProfileEntry{
		ID:          uuid.New().String(),
		IdentityKey: identityKey,
		Name:        name,
		Profile:     profile,
	}
	r.data[identityKey] = entry
	r.persist()

	return entry.ID
}

// Get returns a copy of the entry with id, or nil
func (r *Registry) Get(id string) *ProfileEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry := r.find(id); entry != nil {
		entryCopy := *entry
		return &entryCopy
	}
	return nil
}

// GetByName returns the entry with the custom name, compared case
// insensitively, or nil
func (r *Registry) GetByName(name string) *ProfileEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.data {
		if entry.Name != "" && strings.EqualFold(entry.Name, name) {
			entryCopy := *entry
			return &entryCopy
		}
	}
	return nil
}

// Resolve looks ref up as an ID first and then as a name
func (r *Registry) Resolve(ref string) *ProfileEntry {
	if entry := r.Get(ref); entry != nil {
		return entry
	}
	return r.GetByName(ref)
}

// SetName sets a custom name for a profile
func (r *Registry) SetName(id string, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.find(id)
	if entry == nil {
		return false
	}
	entry.Name = name
	r.persist()
	return true
}

// Update replaces the settings of a profile. The entry is re-keyed when the
// target changes.
func (r *Registry) Update(id string, profile printer.ConnectionProfile) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.find(id)
	if entry == nil {
		return false
	}

	newKey := generateIdentityKey(profile)
	if other, exists := r.data[newKey]; exists && other.ID != id {
		return false
	}

	delete(r.data, entry.IdentityKey)
	entry.IdentityKey = newKey
	entry.Profile = profile
	r.data[newKey] = entry
	r.persist()
	return true
}

// Remove removes a profile from the registry
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.data {
		if entry.ID == id {
			delete(r.data, key)
			r.persist()
			return true
		}
	}
	return false
}

// GetAll returns copies of all profiles ordered by name, then ID
func (r *Registry) GetAll() []*ProfileEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*ProfileEntry, 0, len(r.data))
	for _, v := range r.data {
		entryCopy := *v
		result = append(result, &entryCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (r *Registry) find(id string) *ProfileEntry {
	for _, entry := range r.data {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

// persist saves under the held lock. A failed save is logged and retried on
// the next change.
func (r *Registry) persist() {
	if err := r.save(); err != nil {
		r.log.WithError(err).WithField("path", r.filePath).Warn("failed to save registry")
	}
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &r.data)
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(r.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(r.filePath, data, 0644)
}

// generateIdentityKey creates a unique key for the printer a profile targets
func generateIdentityKey(profile printer.ConnectionProfile) string {
	switch profile.CommunicationType {
	case printer.CommunicationUSB, printer.CommunicationDriver:
		if profile.PrinterName != "" {
			return fmt.Sprintf("%s:%s", profile.CommunicationType, strings.ToLower(profile.PrinterName))
		}
	case printer.CommunicationSerial:
		if profile.SerialPortName != "" {
			return fmt.Sprintf("serial:%s", profile.SerialPortName)
		}
	case printer.CommunicationParallel:
		if profile.ParallelPortName != "" {
			return fmt.Sprintf("parallel:%s", strings.ToUpper(profile.ParallelPortName))
		}
	case printer.CommunicationNetwork:
		if profile.NetworkAddress != "" {
			return fmt.Sprintf("network:%s:%d", profile.NetworkAddress, profile.NetworkPort)
		}
	}

	// Fallback: hash the settings
	data, _ := json.Marshal(profile)
	hash := md5.Sum(data)
	return fmt.Sprintf("hash:%x", hash)
}
