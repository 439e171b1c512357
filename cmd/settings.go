package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"livewatch/internal/source"
	"livewatch/internal/ui"
)

var settingsFlags struct {
	interval     int
	root         string
	logFile      string
	split        string
	splitMinutes int
	splitMB      int
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change global settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show global settings",
	Args:  cobra.NoArgs,
	RunE:  settingsShowRun,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change global settings",
	Args:  cobra.NoArgs,
	RunE:  settingsSetRun,
}

func init() {
	f := settingsSetCmd.Flags()
	f.IntVar(&settingsFlags.interval, "interval", 0, "Seconds between live checks")
	f.StringVar(&settingsFlags.root, "root", "", "Recording root directory")
	f.StringVar(&settingsFlags.logFile, "log", "", "Log file path")
	f.StringVar(&settingsFlags.split, "split", "", "Split policy: time | size | none")
	f.IntVar(&settingsFlags.splitMinutes, "split-minutes", 0, "Segment length for the time policy")
	f.IntVar(&settingsFlags.splitMB, "split-mb", 0, "Approximate segment size for the size policy")

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
}

func settingsShowRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := st.Settings(context.Background())
	if err != nil {
		return err
	}
	ui.NewPrinter(os.Stdout).Settings(s)
	return nil
}

// settingsPatch builds a patch from the flags the user actually set.
func settingsPatch(cmd *cobra.Command) (source.SettingsPatch, error) {
	var p source.SettingsPatch
	f := cmd.Flags()
	if f.Changed("interval") {
		p.PollIntervalSeconds = &settingsFlags.interval
	}
	if f.Changed("root") {
		p.RootDirectory = &settingsFlags.root
	}
	if f.Changed("log") {
		p.LogPath = &settingsFlags.logFile
	}
	if f.Changed("split") {
		policy, err := source.ParseSplitPolicy(settingsFlags.split)
		if err != nil {
			return p, err
		}
		p.SplitPolicy = &policy
	}
	if f.Changed("split-minutes") {
		p.SplitTimeMinutes = &settingsFlags.splitMinutes
	}
	if f.Changed("split-mb") {
		p.SplitSizeMB = &settingsFlags.splitMB
	}
	return p, nil
}

func settingsSetRun(cmd *cobra.Command, args []string) error {
	patch, err := settingsPatch(cmd)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := st.UpdateSettings(context.Background(), patch)
	if err != nil {
		return err
	}
	ui.NewPrinter(os.Stdout).Settings(s)
	return nil
}
