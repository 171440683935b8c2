package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ufirm/fingercounter/internal/speech"
)

var speakBase64 bool

var speakCmd = &cobra.Command{
	Use:   "speak <number>",
	Short: "Synthesize and cache the spoken word for a number",
	Long: `Synthesize and cache the spoken word for a number. With --base64 the
inline payload used by the page is printed instead; it is empty when no
audio could be produced.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", args[0], err)
		}
		word, ok := speech.Word(n)
		if !ok {
			return fmt.Errorf("%w: %d", speech.ErrNoWord, n)
		}

		st, err := openStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}

		cache, err := newCache(cfg, st)
		if err != nil {
			return err
		}

		if speakBase64 {
			fmt.Fprintln(cmd.OutOrStdout(), cache.Payload(cmd.Context(), word))
			return nil
		}

		audio, err := cache.Audio(cmd.Context(), word)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", word, cache.Path(word), humanize.Bytes(uint64(len(audio))))
		return nil
	},
}
