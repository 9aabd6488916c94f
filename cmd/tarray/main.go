// tarray CLI - inspect and exercise the scalar-array runtime
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/tarray/config"
	"github.com/chazu/tarray/vm"
)

func main() {
	configPath := flag.String("config", "", "Path to tarray.toml (default: search upwards from the working directory)")
	verbose := flag.Int("v", -1, "Log verbosity override (0 = quiet)")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&describeCmd{}, "")
	subcommands.Register(&allocCmd{}, "")
	subcommands.Register(&multiCmd{}, "")
	subcommands.Register(&copyCmd{}, "")
	subcommands.Register(&snapshotCmd{}, "")
	subcommands.Register(&stressCmd{}, "")

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	verbosity := cfg.Log.Verbosity
	if *verbose >= 0 {
		verbosity = *verbose
	}
	commonlog.Configure(verbosity, cfg.LogPath())

	v := vm.New(cfg.Options())
	status := subcommands.Execute(context.Background(), v)
	v.Shutdown()
	os.Exit(int(status))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.FindAndLoad(wd)
}

// vmFrom extracts the VM passed to subcommands.Execute.
func vmFrom(args []interface{}) *vm.VM {
	return args[0].(*vm.VM)
}
