// internal/requestinfo/ua.go
//
// User-Agent parsing.  This file is the only place that sees uasurfer's
// enums; the rest of the codebase works with UA.

package requestinfo

import (
	"strconv"
	"strings"

	surfer "github.com/avct/uasurfer"
)

// UA is the parsed fingerprint.  Device is one of "Desktop", "Mobile",
// "Tablet", "TV", or "Other".
type UA struct {
	Browser   string `json:"browser"`
	Version   string `json:"version,omitempty"`
	OS        string `json:"os"`
	OSVersion string `json:"os_version,omitempty"`
	Device    string `json:"device"`
	Platform  string `json:"platform"`
	IsBot     bool   `json:"bot,omitempty"`
}

// Short renders "Browser/OS/Device", the form kept in session payloads.
func (u UA) Short() string {
	return u.Browser + "/" + u.OS + "/" + u.Device
}

// ParseUA converts a raw User-Agent header.
func ParseUA(raw string) UA {
	u := surfer.Parse(raw)

	out := UA{
		Browser:   strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:   version(u.Browser.Version),
		OS:        strings.TrimPrefix(u.OS.Name.String(), "OS"),
		OSVersion: version(u.OS.Version),
		Platform:  strings.TrimPrefix(u.OS.Platform.String(), "Platform"),
		IsBot:     u.IsBot(),
	}

	switch u.DeviceType {
	case surfer.DeviceComputer:
		out.Device = "Desktop"
	case surfer.DeviceTablet:
		out.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		out.Device = "Mobile"
	case surfer.DeviceTV:
		out.Device = "TV"
	default:
		out.Device = "Other"
	}
	return out
}

// version renders 17.0.0 as "17", 17.3.0 as "17.3", and 0.0.0 as "".
func version(v surfer.Version) string {
	switch {
	case v.Major == 0 && v.Minor == 0 && v.Patch == 0:
		return ""
	case v.Patch != 0:
		return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
	case v.Minor != 0:
		return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
	}
	return strconv.Itoa(v.Major)
}

// primaryLang extracts the first language tag before any ";q=" weight.
func primaryLang(al string) string {
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.ToLower(strings.TrimSpace(tag))
}
