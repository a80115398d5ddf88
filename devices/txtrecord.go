package devices

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// CapabilityVideoOut is the bitmask for video output capability (bit 0)
const CapabilityVideoOut = 1

// txtRecord holds the _googlecast._tcp TXT fields we care about.
type txtRecord struct {
	ID           string `mapstructure:"id"`
	FriendlyName string `mapstructure:"fn"`
	Model        string `mapstructure:"md"`
	Capabilities int    `mapstructure:"ca"`
	Status       string `mapstructure:"rs"`

	hasCapabilities bool
}

// parseTXT decodes "key=value" TXT strings. Malformed entries are skipped
// and an unparsable ca= field is treated as a video capable receiver.
func parseTXT(fields []string) txtRecord {
	raw := make(map[string]any, len(fields))
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			continue
		}
		if _, seen := raw[key]; seen {
			continue
		}
		raw[key] = value
	}

	var rec txtRecord
	if ca, ok := raw["ca"]; ok {
		var caps struct {
			Capabilities int `mapstructure:"ca"`
		}
		if err := mapstructure.WeakDecode(map[string]any{"ca": ca}, &caps); err == nil {
			rec.Capabilities = caps.Capabilities
			rec.hasCapabilities = true
		}
		delete(raw, "ca")
	}

	_ = mapstructure.WeakDecode(raw, &rec)

	return rec
}

// audioOnly reports whether the receiver lacks the video out bit.
// A missing ca= field means a standard video device.
func (r txtRecord) audioOnly() bool {
	if !r.hasCapabilities {
		return false
	}
	return r.Capabilities&CapabilityVideoOut == 0
}

// friendlyName picks fn= when present, falling back to the instance name
// with the service suffix removed.
func (r txtRecord) friendlyName(instance string) string {
	name := r.FriendlyName
	if name == "" {
		name = instance
	}

	if idx := strings.Index(name, "._googlecast"); idx > 0 {
		name = name[:idx]
	}

	return name
}
