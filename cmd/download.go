package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"livewatch/internal/download"
)

var (
	flagQuality   string
	flagAudioOnly bool
	flagOutput    string
	flagFilename  string
)

var downloadCmd = &cobra.Command{
	Use:   "download URL",
	Short: "Download a single video or its audio",
	Args:  cobra.ExactArgs(1),
	RunE:  downloadRun,
}

func init() {
	downloadCmd.Flags().StringVarP(&flagQuality, "quality", "q", "best", "Video quality: best | 2160 | 1440 | 1080 | 720 | 480 | 360")
	downloadCmd.Flags().BoolVarP(&flagAudioOnly, "audio-only", "a", false, "Extract audio only (mp3)")
	downloadCmd.Flags().StringVarP(&flagOutput, "output", "o", "./downloads", "Output directory")
	downloadCmd.Flags().StringVarP(&flagFilename, "filename", "f", "", "File name without extension")
}

func downloadRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := newEngine()
	svc := download.New(engine, engine, os.Stderr)

	fmt.Fprintf(os.Stderr, "Downloading %s\n", args[0])
	res, err := svc.Download(ctx, download.Request{
		URL:       args[0],
		Dir:       flagOutput,
		Quality:   flagQuality,
		AudioOnly: flagAudioOnly,
		Filename:  flagFilename,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Saved to %s\n", res.Path)
	return nil
}
