package client

import (
	"strings"

	"github.com/mwantia/fluxupload/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewClientCommands() []*cobra.Command {
	return []*cobra.Command{
		NewUploadCommand(),
		NewStatusCommand(),
	}
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "http://localhost:8080/fluxupload", "upload API base url including the route prefix")
	cmd.Flags().StringSlice("header", nil, "extra request header as key=value, repeatable")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlag("client.server", cmd.Flags().Lookup("server")); err != nil {
			return err
		}
		return viper.BindPFlag("client.headers", cmd.Flags().Lookup("header"))
	}
}

func newClient() *client.Client {
	headers := map[string]string{}
	for _, header := range viper.GetStringSlice("client.headers") {
		key, value, ok := strings.Cut(header, "=")
		if ok {
			headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}

	return client.New(client.Config{
		BaseURL: viper.GetString("client.server"),
		Headers: headers,
	})
}
