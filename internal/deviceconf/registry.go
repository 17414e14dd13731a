package deviceconf

import "sort"

// Type describes one configuration block the firmware can report.
type Type struct {
	MainCmd     int    `json:"main_cmd"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// Types is the registry of every MainCmd value the firmware answers.
// SetCfg is rejected by the firmware (error 16001) for all of them, so the
// registry is read-only by construction.
var Types = map[int]Type{
	101: {101, "Network", "🌐", "IP address, ports, DHCP, DDNS, PPPoE, WiFi"},
	103: {103, "Network Services", "📡", "NMS, AMS, NTP, Email settings"},
	105: {105, "Display / OSD", "🖥️", "On-screen display, channel names, fonts"},
	107: {107, "Encoding", "🎬", "Compression, resolution, bitrate, framerate"},
	109: {109, "Record Schedule", "⏺️", "Recording schedules per channel"},
	111: {111, "System Time", "🕐", "Current DVR date and time"},
	115: {115, "Decoder / Serial", "🔌", "Serial port and decoder (PTZ) settings"},
	117: {117, "Alarm", "🚨", "Alarm inputs, outputs, motion detection"},
	121: {121, "Users", "👤", "User accounts and permissions"},
	123: {123, "Device Info", "ℹ️", "Model, firmware, channel count (read-only)"},
	125: {125, "Device Config", "⚙️", "DVR ID, timezone, DST, language, device name"},
	127: {127, "Storage", "💾", "Hard disk info, disk groups"},
	129: {129, "Device Status", "📊", "Live channel status, motion, bitrates"},
	131: {131, "Maintenance", "🔧", "Auto-maintenance schedule"},
	133: {133, "Custom Settings", "🎛️", "Work mode, feature toggles (email, CMS, NTP)"},
	139: {139, "Source Device", "📹", "Connected camera/source info"},
	221: {221, "Storage (Extended)", "💿", "Extended disk and partition info"},
}

// TypeFor looks up the registry entry for a MainCmd value.
func TypeFor(mainCmd int) (Type, bool) {
	t, ok := Types[mainCmd]
	return t, ok
}

// TypeList returns all registry entries ordered by MainCmd.
func TypeList() []Type {
	out := make([]Type, 0, len(Types))
	for _, t := range Types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MainCmd < out[j].MainCmd })
	return out
}
