package config

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"

	"github.com/coda-et/etransport/internal/station"
)

// StationDef is one station entry in a declarative topology file.
type StationDef struct {
	Name             string  `yaml:"name"`
	Flow             string  `yaml:"flow"`    // "serial" | "parallel"
	Block            string  `yaml:"block"`   // "blocking" | "non_blocking"
	Select           string  `yaml:"select"`  // "all" | "match" | "rrobin" | "equal_cue" | "user"
	Restore          string  `yaml:"restore"` // "to_station" | "to_input" | "to_grandcentral" | "redistribute"
	Prescale         int     `yaml:"prescale"`
	CueSize          int     `yaml:"cue_size"`
	SelectVector     []int32 `yaml:"select_vector"`
	UserSelectName   string  `yaml:"user_select_name"`
	Position         int     `yaml:"position"`
	ParallelPosition int     `yaml:"parallel_position"`
	ParallelGroup    string  `yaml:"parallel_group"` // joins the group headed by this name, if already created
}

// Topology is the top-level shape of a topology YAML file.
type Topology struct {
	Stations []StationDef `yaml:"stations"`
}

// LoadTopologyFile parses one topology YAML file.
func LoadTopologyFile(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file %s: %w", path, err)
	}
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse topology file %s: %w", path, err)
	}
	return &t, nil
}

// DiscoverTopologyFiles globs for topology files under root (e.g.
// "configs/**/*.topology.yaml"), used when ET_TOPOLOGY_GLOB names a
// directory tree rather than a single file.
func DiscoverTopologyFiles(root, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob topology files under %s: %w", root, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, root+"/"+m)
	}
	return out, nil
}

func flowMode(s string) station.FlowMode {
	if s == "parallel" {
		return station.FlowParallel
	}
	return station.FlowSerial
}

func blockMode(s string) station.BlockMode {
	if s == "non_blocking" {
		return station.NonBlocking
	}
	return station.Blocking
}

func selectMode(s string) station.SelectMode {
	switch s {
	case "match":
		return station.SelectMatch
	case "rrobin":
		return station.SelectRRobin
	case "equal_cue":
		return station.SelectEqualCue
	case "user":
		return station.SelectUser
	default:
		return station.SelectAll
	}
}

func restoreMode(s string) station.RestoreMode {
	switch s {
	case "to_input":
		return station.RestoreToInput
	case "redistribute":
		return station.RestoreRedistribute
	case "to_station":
		return station.RestoreToStation
	default:
		return station.RestoreToGrandCentral
	}
}

// ToStationConfig converts a parsed definition into a station.Config.
func (d StationDef) ToStationConfig() station.Config {
	prescale := d.Prescale
	if prescale < 1 {
		prescale = 1
	}
	return station.Config{
		Flow:           flowMode(d.Flow),
		Block:          blockMode(d.Block),
		Select:         selectMode(d.Select),
		Restore:        restoreMode(d.Restore),
		Prescale:       prescale,
		CueSize:        d.CueSize,
		SelectVector:   d.SelectVector,
		UserSelectName: d.UserSelectName,
	}
}
