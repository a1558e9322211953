// Package config holds the typed configuration of every component and
// loads it from viper (config file, environment and flags).
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/texerai/maveric2/pkg/commitlog"
	"github.com/texerai/maveric2/pkg/memimage"
	"github.com/texerai/maveric2/pkg/refsim"
	"github.com/texerai/maveric2/pkg/suite"
	"github.com/texerai/maveric2/pkg/trace"
	"github.com/texerai/maveric2/pkg/utils"
)

// EnvPrefix prefixes the environment variables read by viper
const EnvPrefix = "MAVERIC2"

// Config is the whole configuration document
type Config struct {
	RefSim    refsim.Config      `mapstructure:"refsim"`
	CommitLog commitlog.Config   `mapstructure:"commitlog"`
	Window    trace.WindowConfig `mapstructure:"window"`
	MemImage  memimage.Config    `mapstructure:"memimage"`
	Suite     suite.Config       `mapstructure:"suite"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		RefSim:    refsim.DefaultConfig(),
		CommitLog: commitlog.DefaultConfig(),
		Window:    trace.DefaultWindowConfig(),
		MemImage:  memimage.DefaultConfig(),
		Suite:     suite.DefaultConfig(),
	}
}

// SetDefaults registers the built-in values on v, so every key is known to
// viper (and therefore to AutomaticEnv) even without a config file
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("refsim.path", d.RefSim.Path)
	v.SetDefault("refsim.args", d.RefSim.Args)
	v.SetDefault("refsim.timeout", d.RefSim.Timeout)
	v.SetDefault("refsim.poll_interval", d.RefSim.PollInterval)
	v.SetDefault("refsim.sentinels", d.RefSim.Sentinels)

	v.SetDefault("commitlog.isa_marker", d.CommitLog.ISAMarker)
	v.SetDefault("commitlog.base_marker", d.CommitLog.BaseMarker)
	v.SetDefault("commitlog.exit_markers", d.CommitLog.ExitMarkers)
	v.SetDefault("commitlog.trap_vector_pc", d.CommitLog.TrapVectorPC)
	v.SetDefault("commitlog.nop_instrs", d.CommitLog.NopInstrs)

	v.SetDefault("window.start_instr", utils.FormatUintHex(d.Window.StartInstr, 8))
	v.SetDefault("window.end_instr", utils.FormatUintHex(d.Window.EndInstr, 8))

	v.SetDefault("memimage.base_address", d.MemImage.BaseAddress)
	v.SetDefault("memimage.region_size", d.MemImage.RegionSize)
	v.SetDefault("memimage.section_end", d.MemImage.SectionEnd)

	v.SetDefault("suite.manifest", d.Suite.Manifest)
	v.SetDefault("suite.elf_dir", d.Suite.ELFDir)
	v.SetDefault("suite.workdir", d.Suite.WorkDir)
	v.SetDefault("suite.results", d.Suite.Results)
	v.SetDefault("suite.parallel", d.Suite.Parallel)
	v.SetDefault("suite.keep_workdir", d.Suite.KeepWorkDir)
	v.SetDefault("suite.dut.command", d.Suite.DUT.Command)
	v.SetDefault("suite.dut.timeout", d.Suite.DUT.Timeout)
	v.SetDefault("suite.dut.dir", d.Suite.DUT.Dir)
}

// SetupEnv makes v read MAVERIC2_<SECTION>_<KEY> environment variables
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v. Numbers may be
// given as hex strings ("0xf1402573").
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would make a component misbehave
func (c *Config) Validate() error {
	switch {
	case c.RefSim.Timeout < 0:
		return errors.New("refsim.timeout must not be negative")
	case c.RefSim.PollInterval <= 0:
		return errors.New("refsim.poll_interval must be positive")
	case len(c.RefSim.Sentinels) == 0:
		return errors.New("refsim.sentinels must not be empty")
	case c.Window.StartInstr == c.Window.EndInstr:
		return errors.Errorf("window.start_instr and window.end_instr are both %s", utils.FormatUintHex(c.Window.StartInstr, 8))
	case c.MemImage.RegionSize == 0:
		return errors.New("memimage.region_size must be positive")
	case !utils.IsAligned(c.MemImage.BaseAddress, memimage.WordSize):
		return errors.Errorf("memimage.base_address %s is not word aligned", utils.FormatUintHex(c.MemImage.BaseAddress, 8))
	case c.Suite.DUT.Timeout < 0:
		return errors.New("suite.dut.timeout must not be negative")
	}

	if c.Suite.Parallel < 1 {
		c.Suite.Parallel = 1
	}

	return nil
}
