package metrics

import "sync"

// SystemInfo holds static system information captured once at process startup.
type SystemInfo struct {
	OS                string `json:"os"`
	OSVersion         string `json:"os_version"`
	Arch              string `json:"arch"`
	Hostname          string `json:"hostname"`
	CPUCores          int    `json:"cpu_cores"`
	CPULogical        int    `json:"cpu_logical"`
	TotalMemoryMB     uint64 `json:"total_memory_mb"`
	GoVersion         string `json:"go_version"`
	InContainer       bool   `json:"in_container"`
	ContainerRuntime  string `json:"container_runtime,omitempty"`
}

var (
	systemInfo     *SystemInfo
	systemInfoOnce sync.Once
)

// GetSystemInfo returns cached system information, captured once on first call.
func GetSystemInfo() *SystemInfo {
	systemInfoOnce.Do(func() {
		systemInfo = captureSystemInfo()
	})
	return systemInfo
}

// ToMap converts SystemInfo to a map for JSON responses and log fields.
func (si *SystemInfo) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"os":              si.OS,
		"os_version":      si.OSVersion,
		"arch":            si.Arch,
		"hostname":        si.Hostname,
		"cpu_cores":       si.CPUCores,
		"cpu_logical":     si.CPULogical,
		"total_memory_mb": si.TotalMemoryMB,
		"go_version":      si.GoVersion,
		"in_container":    si.InContainer,
	}
	if si.ContainerRuntime != "" {
		m["container_runtime"] = si.ContainerRuntime
	}
	return m
}
