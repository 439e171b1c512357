package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"livewatch/internal/httputil"
	"livewatch/internal/source"
	"livewatch/internal/ui"
)

var (
	flagDisabled bool
	flagFormat   string
	flagYes      bool
)

var sourceCmd = &cobra.Command{
	Use:     "source",
	Aliases: []string{"channel"},
	Short:   "Manage watched sources",
}

var sourceAddCmd = &cobra.Command{
	Use:   "add NAME URL",
	Short: "Add a source",
	Args:  cobra.ExactArgs(2),
	RunE:  sourceAddRun,
}

var sourceListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sources",
	Args:    cobra.NoArgs,
	RunE:    sourceListRun,
}

var sourceRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Remove a source",
	Args:    cobra.ExactArgs(1),
	RunE:    sourceRemoveRun,
}

var sourceEnableCmd = &cobra.Command{
	Use:   "enable ID",
	Short: "Enable a source",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(args[0], true) },
}

var sourceDisableCmd = &cobra.Command{
	Use:   "disable ID",
	Short: "Disable a source",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(args[0], false) },
}

func init() {
	sourceAddCmd.Flags().BoolVar(&flagDisabled, "disabled", false, "Add the source disabled")
	sourceAddCmd.Flags().StringVar(&flagFormat, "format", "", "yt-dlp format selector for recordings")
	sourceRemoveCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "Do not ask for confirmation")

	sourceCmd.AddCommand(sourceAddCmd, sourceListCmd, sourceRemoveCmd, sourceEnableCmd, sourceDisableCmd)
}

func sourceAddRun(cmd *cobra.Command, args []string) error {
	name, url := args[0], args[1]
	if err := httputil.ValidateURL(url); err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	src, err := st.AddSource(context.Background(), source.Source{
		Name:    name,
		Address: url,
		Enabled: !flagDisabled,
		Format:  flagFormat,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Added source %q\n", src.Name)
	fmt.Printf("  ID:  %s\n", src.ID)
	fmt.Printf("  URL: %s\n", src.Address)
	return nil
}

func sourceListRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sources, err := st.ListSources(context.Background(), false)
	if err != nil {
		return err
	}
	ui.NewPrinter(os.Stdout).Sources(sources)
	return nil
}

func sourceRemoveRun(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := httputil.ValidateID(id); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	src, err := st.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if !flagYes && !ui.Confirm(os.Stdin, os.Stderr, fmt.Sprintf("Remove source %q?", src.Name)) {
		fmt.Println("Cancelled.")
		return nil
	}
	if err := st.RemoveSource(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Removed source %q\n", src.Name)
	return nil
}

func setEnabled(id string, enabled bool) error {
	if err := httputil.ValidateID(id); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	src, err := st.UpdateSource(context.Background(), id, source.Patch{Enabled: &enabled})
	if err != nil {
		return err
	}

	verb := "Disabled"
	if enabled {
		verb = "Enabled"
	}
	fmt.Printf("%s source %q\n", verb, src.Name)
	return nil
}
