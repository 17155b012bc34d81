package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"
	runtimedebug "runtime/debug"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/penwyp/ScreenCat/config"
)

var (
	versionOutput string
	versionShort  bool
)

// Build information set by linker during build. The version itself lives
// in config.Version so the running daemon reports the same value.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo describes the binary and where it keeps its data
type VersionInfo struct {
	Version   string     `json:"version"`
	BuildTime string     `json:"build_time"`
	GitCommit string     `json:"git_commit"`
	GoVersion string     `json:"go_version"`
	Platform  string     `json:"platform"`
	Paths     *DataPaths `json:"paths,omitempty"`
}

// DataPaths are the files a daemon started with the same flags would use
type DataPaths struct {
	ConfigFile string `json:"config_file,omitempty"`
	DataDir    string `json:"data_dir"`
	Store      string `json:"store"`
	EventLog   string `json:"event_log"`
	Catalog    string `json:"catalog"`
	Timezone   string `json:"timezone"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the ScreenCat version, build details and the data locations
resolved from the current configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := newVersionInfo()

		if versionShort || versionOutput == "short" {
			fmt.Println(info.Version)
			return nil
		}

		// Paths are informational; a broken config should not hide the version
		file := cfgFile
		if file == "" {
			file = config.FindConfigFile()
		}
		if cfg, err := config.Load(file, cmd.Flags()); err == nil {
			info.Paths = dataPaths(cfg, file)
		}

		if versionOutput == "json" {
			return writeVersionJSON(os.Stdout, info)
		}
		return writeVersionText(os.Stdout, info)
	},
}

func init() {
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "default", "output format (default, json, short)")
	versionCmd.Flags().BoolVarP(&versionShort, "short", "s", false, "show only version number")

	rootCmd.AddCommand(versionCmd)
}

// newVersionInfo fills missing linker values from the module build info
func newVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   config.Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := runtimedebug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

func dataPaths(cfg *config.Config, file string) *DataPaths {
	return &DataPaths{
		ConfigFile: file,
		DataDir:    cfg.Data.Dir,
		Store:      cfg.StoreDir(),
		EventLog:   cfg.EventLogPath(),
		Catalog:    cfg.CatalogPath(),
		Timezone:   cfg.App.Timezone,
	}
}

func writeVersionText(w io.Writer, info VersionInfo) error {
	fmt.Fprintf(w, "ScreenCat - Screen Time Tracker\n")
	fmt.Fprintf(w, "Version:     %s\n", info.Version)
	if info.GitCommit != "unknown" {
		fmt.Fprintf(w, "Git Commit:  %s\n", info.GitCommit)
	}
	if info.BuildTime != "unknown" {
		fmt.Fprintf(w, "Build Time:  %s\n", info.BuildTime)
	}
	fmt.Fprintf(w, "Go Version:  %s (%s)\n", info.GoVersion, info.Platform)

	p := info.Paths
	if p == nil {
		return nil
	}
	fmt.Fprintf(w, "\n")
	if p.ConfigFile != "" {
		fmt.Fprintf(w, "Config:      %s\n", p.ConfigFile)
	}
	fmt.Fprintf(w, "Data Dir:    %s\n", p.DataDir)
	fmt.Fprintf(w, "Store:       %s\n", p.Store)
	fmt.Fprintf(w, "Event Log:   %s\n", p.EventLog)
	fmt.Fprintf(w, "Catalog:     %s\n", p.Catalog)
	_, err := fmt.Fprintf(w, "Timezone:    %s\n", p.Timezone)
	return err
}

func writeVersionJSON(w io.Writer, info VersionInfo) error {
	data, err := sonic.ConfigStd.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
