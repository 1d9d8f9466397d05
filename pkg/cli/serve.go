package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/salesmap/pkg/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		gw, err := gateway.New(config)
		if err != nil {
			return err
		}

		PrintSuccess("Gateway starting")
		PrintKeyValue("Mode", config.Mode)
		PrintKeyValue("Listen", fmt.Sprintf("%s:%d", config.Gateway.HTTP.Host, config.Gateway.HTTP.Port))
		PrintNewline()

		return gw.Start()
	},
}
