package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	zp "github.com/Keksclan/zoraprofiles"
	"github.com/Keksclan/zoraprofiles/profiles"
)

func newFetchCmd(v *viper.Viper) *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "fetch HANDLE...",
		Short: "Aggregate profiles for the given handles and print the JSON response",
		Example: `  zoraprofiles fetch alice @bob 0x1234...
  zoraprofiles fetch "alice,bob" --compact`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(v)
			if err != nil {
				return err
			}
			defer rt.close()

			srv := zp.NewServer(rt.opts...)
			defer srv.Close()
			return fetch(cmd, srv.Service(), rt.settings.MaxHandles, args, compact)
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print the response on a single line")
	return cmd
}

func fetch(cmd *cobra.Command, svc *profiles.Service, maxHandles int, args []string, compact bool) error {
	ids := profiles.NormalizeIdentifiers(splitArgs(args))
	if len(ids) == 0 {
		return errors.New("no valid handles provided")
	}
	if len(ids) > maxHandles {
		return fmt.Errorf("too many handles; max %d, received %d", maxHandles, len(ids))
	}

	resp, err := svc.Aggregate(cmd.Context(), ids)
	if err != nil {
		return err
	}
	if err := writeResponse(cmd.OutOrStdout(), resp, compact); err != nil {
		return err
	}
	if resp.Meta.HadErrors {
		return errors.New("some handles could not be fetched")
	}
	return nil
}

func writeResponse(w io.Writer, resp *profiles.Response, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}
