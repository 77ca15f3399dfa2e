package fixer

import (
	"github.com/tristendillon/bundlefix/core/config"
	"github.com/tristendillon/bundlefix/core/toolchain"
)

// OptionsFromConfig picks the lister and rewriter named by cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	runner := toolchain.ExecRunner{}

	var lister toolchain.DependencyLister
	switch cfg.Lister {
	case config.ListerMachO:
		lister = toolchain.MachOLister{}
	default:
		lister = toolchain.NewOtoolLister(cfg.Tools.Otool, runner)
	}

	return Options{
		Lister:           lister,
		Rewriter:         toolchain.NewInstallNameTool(cfg.Tools.InstallNameTool, runner),
		Rules:            cfg.Rules(),
		PluginExtensions: cfg.PluginExtensions,
	}
}
