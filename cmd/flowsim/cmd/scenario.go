package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/flowsim/flowsim/pkg/model"
)

// scenarioFile is the on-disk (YAML/JSON/TOML, via viper) shape of one
// simulation scenario: a topology, a workload, and the knobs that make a
// run reproducible and optionally detailed.
type scenarioFile struct {
	Name        string  `mapstructure:"name"`
	RoutingSeed int64   `mapstructure:"routing_seed"`
	Detailed    bool    `mapstructure:"detailed"`
	Topology    topoSec `mapstructure:"topology"`
	Workload    model.WorkloadInput `mapstructure:"workload"`
}

type topoSec struct {
	Kind        string  `mapstructure:"kind"`
	NumHosts    int     `mapstructure:"num_hosts"`
	SwitchRadix int     `mapstructure:"switch_radix"`
	Capacity    float64 `mapstructure:"capacity"`
}

// loadScenario reads a scenario file from disk and converts it into the
// TopologyInput/WorkloadInput pair the scheduler/engine consume.
func loadScenario(path string) (*scenarioFile, model.TopologyInput, model.WorkloadInput, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, model.TopologyInput{}, model.WorkloadInput{}, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var sf scenarioFile
	if err := v.Unmarshal(&sf); err != nil {
		return nil, model.TopologyInput{}, model.WorkloadInput{}, fmt.Errorf("failed to parse scenario file: %w", err)
	}

	kind, err := parseTopologyKind(sf.Topology.Kind)
	if err != nil {
		return nil, model.TopologyInput{}, model.WorkloadInput{}, err
	}

	topo := model.TopologyInput{
		Kind:        kind,
		NumHosts:    sf.Topology.NumHosts,
		SwitchRadix: sf.Topology.SwitchRadix,
		Capacity:    sf.Topology.Capacity,
	}

	return &sf, topo, sf.Workload, nil
}

func parseTopologyKind(s string) (model.TopologyKind, error) {
	switch s {
	case "one_big_switch", "":
		return model.TopologyOneBigSwitch, nil
	case "fat_tree":
		return model.TopologyFatTree, nil
	default:
		return 0, fmt.Errorf("unknown topology kind %q (valid: one_big_switch, fat_tree)", s)
	}
}
