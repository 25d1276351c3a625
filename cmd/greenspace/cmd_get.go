package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greenspace/reqgate"
)

var getToken string

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Fetch an API path and print the JSON body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gate := newGate()
		defer gate.Close()

		var opts []reqgate.RequestOption
		if getToken != "" {
			opts = append(opts, reqgate.WithHeader("Authorization", "Bearer "+getToken))
		}
		logger.Debug("fetching", zap.String("path", args[0]))
		resp, err := gate.Get(cmd.Context(), args[0], opts...)
		if err != nil {
			return err
		}

		var out bytes.Buffer
		if json.Indent(&out, resp.Data, "", "  ") != nil {
			out.Reset()
			out.Write(resp.Data)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getToken, "token", "", "bearer token")
}
