package types

// Manifest is the parsed manifest.json of an install package. It is consumed
// at install time to populate an App record and a permission grant; it is not
// retained afterwards.
//
// Missing name/version/memory_limit get defaults. EntryPoint and Permissions
// are never defaulted: an absent entry point surfaces as a load failure at
// start time, not an install-time rejection beyond ValidateManifest.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
	EntryPoint  string `json:"entry_point"`
	Permissions string `json:"permissions"`
	MemoryLimit int64  `json:"memory_limit"`
	HasIcon     bool   `json:"has_icon"`
}

const (
	DefaultAppName    = "Unknown App"
	DefaultAppVersion = "1.0.0"
)

// ApplyDefaults fills the defaulted fields in place.
func (m *Manifest) ApplyDefaults(defaultMemoryLimit int64) {
	if m.Name == "" {
		m.Name = DefaultAppName
	}
	if m.Version == "" {
		m.Version = DefaultAppVersion
	}
	if m.MemoryLimit <= 0 {
		m.MemoryLimit = defaultMemoryLimit
	}
}
