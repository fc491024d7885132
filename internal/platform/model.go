package platform

import (
	"os"
	"strings"
)

const defaultModel = "raspberry-pi"

// Model returns the hardware model string from the device tree, falling
// back to a generic identifier off-target.
func Model() string {
	data, err := os.ReadFile("/proc/device-tree/model")
	if err != nil {
		return defaultModel
	}
	model := strings.TrimRight(string(data), "\x00\n ")
	if model == "" {
		return defaultModel
	}
	return model
}
