package l3grid

import (
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MapYAML is the map_server metadata document written beside a PGM.
type MapYAML struct {
	Image          string    `yaml:"image"`
	Mode           string    `yaml:"mode,omitempty"`
	Resolution     float32   `yaml:"resolution"`
	Origin         []float32 `yaml:"origin,flow"`
	Negate         int       `yaml:"negate"`
	OccupiedThresh float32   `yaml:"occupied_thresh"`
	FreeThresh     float32   `yaml:"free_thresh"`
}

// SidecarPath returns the YAML path for a raster path: map.pgm -> map.yaml.
func SidecarPath(rasterPath string) string {
	return strings.TrimSuffix(rasterPath, filepath.Ext(rasterPath)) + ".yaml"
}

// NewMapYAML describes g using the raster thresholds.
func NewMapYAML(g *OccupancyGrid, image string) MapYAML {
	return MapYAML{
		Image:          image,
		Mode:           "trinary",
		Resolution:     g.Info.Resolution,
		Origin:         []float32{g.Info.Origin.X, g.Info.Origin.Y, 0},
		Negate:         0,
		OccupiedThresh: float32(OccupiedThreshold) / 100,
		FreeThresh:     float32(FreeThreshold) / 100,
	}
}

// MarshalMapYAML encodes the map_server metadata for g.
func MarshalMapYAML(g *OccupancyGrid, image string) ([]byte, error) {
	return yaml.Marshal(NewMapYAML(g, image))
}

// ParseMapYAML decodes a map_server metadata document.
func ParseMapYAML(b []byte) (MapYAML, error) {
	var m MapYAML
	err := yaml.Unmarshal(b, &m)
	return m, err
}
