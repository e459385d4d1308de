package navserial

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/costmap/internal/costmap/l1packets"
)

// Line kinds accepted on the serial port.
const (
	LineTypeNav  = "nav"
	LineTypeSave = "save"
)

// ErrUnknownLine is returned for a JSON line whose type is not recognised.
var ErrUnknownLine = errors.New("unknown line type")

type wireLine struct {
	Type  string `json:"type"`
	Stamp struct {
		Sec     int32  `json:"sec"`
		Nanosec uint32 `json:"nanosec"`
	} `json:"stamp"`
	Quaternion *struct {
		W float64 `json:"w"`
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"quaternion"`
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"position"`
	Data bool `json:"data"`
}

// ParseLine decodes one line of INS output. Blank lines and lines starting
// with '#' yield a nil message and no error.
//
//	{"type":"nav","stamp":{"sec":1,"nanosec":0},"quaternion":{"w":1,"x":0,"y":0,"z":0},"position":{"x":0,"y":0,"z":0}}
//	{"type":"save","data":true}
func ParseLine(line string) (l1packets.Message, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	var w wireLine
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return nil, fmt.Errorf("invalid nav line: %w", err)
	}

	switch w.Type {
	case LineTypeNav:
		if w.Quaternion == nil {
			return nil, errors.New("nav line missing quaternion")
		}
		return &l1packets.NavState{
			Stamp:      l1packets.Stamp{Sec: w.Stamp.Sec, Nanosec: w.Stamp.Nanosec},
			Quaternion: l1packets.Quaternion{W: w.Quaternion.W, X: w.Quaternion.X, Y: w.Quaternion.Y, Z: w.Quaternion.Z},
			Position:   l1packets.Vector3{X: w.Position.X, Y: w.Position.Y, Z: w.Position.Z},
		}, nil
	case LineTypeSave:
		return &l1packets.SaveCommand{Data: w.Data}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLine, w.Type)
	}
}
