// Package config parses the Client's optional autostart INI file
// (spec.md §A.3, a supplemental feature this project adds on top of the
// protocol spec). A Client started without -config behaves exactly as
// spec.md describes; this package only produces the same Dir/Files a user
// would otherwise type by hand via setdir/offer.
package config

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// Autostart is the parsed form of the [offer] section of a Client config
// file.
type Autostart struct {
	Dir   string
	Files []string
}

// Load reads and parses an autostart INI file, following the same
// ini.Load usage as gocanopen's pkg/od/parser.go EDS loader.
func Load(path string) (Autostart, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Autostart{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	section := f.Section("offer")
	dir := section.Key("dir").String()
	rawFiles := section.Key("files").String()

	var files []string
	for _, name := range strings.Split(rawFiles, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			files = append(files, name)
		}
	}

	log.Debugf("[config] loaded autostart config from %s: dir=%q files=%v", path, dir, files)
	return Autostart{Dir: dir, Files: files}, nil
}
