// Command fingercounter serves the browser finger counter and offers a few
// offline helpers around it.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dimiro1/banner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ufirm/fingercounter/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	configFile string
	v          *viper.Viper
	cfg        config.Config

	rootCmd = &cobra.Command{
		Use:           "fingercounter",
		Short:         "Count raised fingers from a webcam and speak the number",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v = config.New(configFile)
			loaded, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg = loaded
			log.SetLevel(cfg.Log.Level)
			if used := v.ConfigFileUsed(); used != "" {
				log.Debug("using config file", "path", used)
			}
			return nil
		},
		RunE: runServe,
	}
)

func printBanner() {
	tpl := "{{ .Title \"FINGERCOUNTER\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s.yaml in . or the user config dir)", config.AppName))
	rootCmd.Flags().BoolVar(&withTray, "tray", false, "show a system tray icon")

	serveCmd.Flags().BoolVar(&withTray, "tray", false, "show a system tray icon")
	countCmd.Flags().StringVarP(&countOutput, "output", "o", "", "write the annotated image to this path")
	speakCmd.Flags().BoolVar(&speakBase64, "base64", false, "print the inline base64 payload")

	rootCmd.AddCommand(serveCmd, countCmd, speakCmd, configCmd)
}
