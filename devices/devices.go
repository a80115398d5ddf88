package devices

import (
	"errors"
	"sort"
)

var (
	ErrNoDeviceAvailable  = errors.New("devices: no Chromecast devices available")
	ErrDeviceNotAvailable = errors.New("devicePicker: requested device not available")
)

// Device is a Chromecast receiver found on the local network.
type Device struct {
	// Name is the friendly name advertised in the fn= TXT field.
	Name string
	// Addr is the control address in URL form, e.g. http://192.168.1.20:8009.
	Addr        string
	ID          string
	Model       string
	IsAudioOnly bool
}

// Label returns the name shown to users, with the receiver kind suffixed.
func (d Device) Label() string {
	if d.IsAudioOnly {
		return d.Name + " (Chromecast Audio)"
	}
	return d.Name + " (Chromecast)"
}

// SortDevices orders devices by name and then by address so
// repeated listings stay stable.
func SortDevices(devs []Device) {
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].Name == devs[j].Name {
			return devs[i].Addr < devs[j].Addr
		}
		return devs[i].Name < devs[j].Name
	})
}

// DevicePicker will pick the nth device (1-based) from the sorted device list.
func DevicePicker(devs []Device, n int) (Device, error) {
	if len(devs) == 0 {
		return Device{}, ErrNoDeviceAvailable
	}

	if n > len(devs) || n <= 0 {
		return Device{}, ErrDeviceNotAvailable
	}

	sorted := make([]Device, len(devs))
	copy(sorted, devs)
	SortDevices(sorted)

	return sorted[n-1], nil
}

// DeviceByAddr finds a device by its URL address or its bare host:port.
func DeviceByAddr(devs []Device, addr string) (Device, error) {
	for _, d := range devs {
		if d.Addr == addr || d.Addr == "http://"+addr {
			return d, nil
		}
	}

	return Device{}, ErrDeviceNotAvailable
}
