//go:build linux

package backend

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// listDevices enumerates V4L2 capture nodes. Stable /dev/v4l/by-id
// symlinks are preferred because their filenames embed the USB product
// name (which is how auto-detection finds the microscope); otherwise
// /dev/video* nodes are listed with their sysfs card names.
func listDevices() ([]DeviceInfo, error) {
	if infos, err := listByID(); err == nil && len(infos) > 0 {
		return infos, nil
	}
	return listVideoNodes()
}

func listByID() ([]DeviceInfo, error) {
	const byIDDir = "/dev/v4l/by-id"
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	infos := make([]DeviceInfo, 0, len(names))
	for i, name := range names {
		link := filepath.Join(byIDDir, name)
		path, err := filepath.EvalSymlinks(link)
		if err != nil {
			path = link
		}
		infos = append(infos, DeviceInfo{Index: i, Name: name, Path: path})
	}
	return infos, nil
}

func listVideoNodes() ([]DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	infos := make([]DeviceInfo, 0, len(paths))
	for i, path := range paths {
		base := filepath.Base(path)
		name := sysfsCardName(base)
		if name == "" {
			name = path
		}
		infos = append(infos, DeviceInfo{Index: i, Name: name, Path: path})
	}
	return infos, nil
}

func sysfsCardName(node string) string {
	raw, err := os.ReadFile(filepath.Join("/sys/class/video4linux", node, "name"))
	if err != nil {
		return ""
	}
	line := string(raw)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}
