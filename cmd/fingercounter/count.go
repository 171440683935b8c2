package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/ufirm/fingercounter/internal/detector"
	"github.com/ufirm/fingercounter/internal/speech"
	"github.com/ufirm/fingercounter/internal/vision"
)

var countOutput string

var countCmd = &cobra.Command{
	Use:   "count <image>",
	Short: "Count raised fingers in a still image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img := gocv.IMRead(args[0], gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			return fmt.Errorf("cannot read image %s", args[0])
		}
		defer img.Close()

		det, err := detector.NewFactory(cfg.Detector)()
		if err != nil {
			return err
		}
		defer det.Close()

		annotated, total, err := vision.NewAnnotator(det).Annotate(img)
		if err != nil {
			return err
		}
		defer annotated.Close()

		if countOutput != "" {
			if !gocv.IMWrite(countOutput, annotated) {
				return fmt.Errorf("cannot write %s", countOutput)
			}
		}

		if word, ok := speech.Word(total); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%d (%s)\n", total, word)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", total)
		}
		return nil
	},
}
