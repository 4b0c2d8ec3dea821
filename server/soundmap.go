package batteria

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	Bt "github.com/maroda/batteria/types"
)

// The drum pads every mapping resolves to.
// These are symbolic output classes: what they trigger
// (MIDI note, sample, monitor display) is an output concern.
const (
	PadSnare  = "snare"
	PadKick   = "kick"
	PadHihat  = "hihat"
	PadTom    = "tom"
	PadCymbal = "cymbal"
)

// ClassUnknown is the wildcard object class in a material mapping.
const ClassUnknown = "unknown"

// PadMapper turns a chosen segment into an output drum pad.
// Exactly one mapper configuration is active at a time,
// supplied by the caller of the localizer.
type PadMapper interface {
	Pad(seg Bt.Segment) string
	Type() string
}

// CyclicPadMap is the simple configuration:
// the segment ID indexes a fixed pad table, modulo its size.
type CyclicPadMap struct {
	Pads []string
}

// NewCyclicPadMap builds the cyclic table,
// defaulting to the five standard pads when none are given.
func NewCyclicPadMap(pads ...string) *CyclicPadMap {
	if len(pads) == 0 {
		pads = []string{PadSnare, PadKick, PadHihat, PadTom, PadCymbal}
	}
	return &CyclicPadMap{Pads: pads}
}

func (c *CyclicPadMap) Pad(seg Bt.Segment) string {
	i := seg.ID % len(c.Pads)
	if i < 0 {
		i += len(c.Pads)
	}
	return c.Pads[i]
}

func (c *CyclicPadMap) Type() string { return "cyclic" }

// MaterialPadMap is the richer configuration, resolved in order:
//  1. (object class, material)
//  2. (unknown, material)
//  3. material alone
//  4. the fixed default pad
type MaterialPadMap struct {
	ClassMaterial map[string]string // key "class|material"
	Material      map[string]string
	Default       string
}

func classMaterialKey(class, material string) string {
	return class + "|" + material
}

func (m *MaterialPadMap) Pad(seg Bt.Segment) string {
	if pad, ok := m.ClassMaterial[classMaterialKey(seg.Class, seg.Material)]; ok {
		return pad
	}
	if pad, ok := m.ClassMaterial[classMaterialKey(ClassUnknown, seg.Material)]; ok {
		return pad
	}
	if pad, ok := m.Material[seg.Material]; ok {
		return pad
	}
	return m.Default
}

func (m *MaterialPadMap) Type() string { return "material" }

// NewMaterialPadMap fills in the built-in surface tables
// so a zero-config run still makes sensible noise.
func NewMaterialPadMap() *MaterialPadMap {
	return &MaterialPadMap{
		ClassMaterial: map[string]string{
			classMaterialKey("bottle", "glass"):   PadHihat,
			classMaterialKey("bottle", "plastic"): PadSnare,
			classMaterialKey("cup", "ceramic"):    PadTom,
			classMaterialKey("cup", "metal"):      PadCymbal,
			classMaterialKey("book", "paper"):     PadSnare,
			classMaterialKey("chair", "wood"):     PadKick,
			classMaterialKey("chair", "metal"):    PadHihat,
		},
		Material: map[string]string{
			"wood":    PadKick,
			"stone":   PadKick,
			"metal":   PadCymbal,
			"glass":   PadHihat,
			"ceramic": PadTom,
			"plastic": PadTom,
			"rubber":  PadTom,
			"fabric":  PadSnare,
			"paper":   PadSnare,
		},
		Default: PadSnare,
	}
}

// PadConfigFile is the on-disk pad mapping configuration.
// Mode selects which mapper is active: "cyclic" or "material".
type PadConfigFile struct {
	Mode          string            `json:"mode"`
	Pads          []string          `json:"pads"`
	ClassMaterial []ClassMaterialCf `json:"class_material"`
	Material      map[string]string `json:"material"`
	Default       string            `json:"default"`
}

type ClassMaterialCf struct {
	Class    string `json:"class"`
	Material string `json:"material"`
	Pad      string `json:"pad"`
}

// LoadPadConfigFileName pulls a given filename config off local disk
// Validation is performed on the file before opening
func LoadPadConfigFileName(filename string) (*PadConfigFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// validation
	if err := validateLoad(file); err != nil {
		slog.Error("Validation failed", slog.Any("Error", err))
		return nil, err
	}

	var cf PadConfigFile
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cf); err != nil {
		slog.Error("could not decode file")
		return nil, err
	}

	return &cf, nil
}

func validateLoad(file *os.File) error {
	// validate file
	info, err := file.Stat()
	if err != nil {
		slog.Error("could not stat file")
		return err
	}

	// validate size
	if info.Size() == 0 {
		slog.Error("file is empty")
		return errors.New("file is empty")
	}

	return nil
}

// NewPadMapperFromConfig builds the single active mapper from config.
// Fields missing from the file keep their built-in defaults.
func NewPadMapperFromConfig(cf *PadConfigFile) (PadMapper, error) {
	switch cf.Mode {
	case "cyclic", "":
		return NewCyclicPadMap(cf.Pads...), nil
	case "material":
		m := NewMaterialPadMap()
		for _, e := range cf.ClassMaterial {
			m.ClassMaterial[classMaterialKey(e.Class, e.Material)] = e.Pad
		}
		for material, pad := range cf.Material {
			m.Material[material] = pad
		}
		if cf.Default != "" {
			m.Default = cf.Default
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown pad mapper mode: %s", cf.Mode)
	}
}
