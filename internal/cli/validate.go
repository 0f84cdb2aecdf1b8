package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kattapik/texttosql-project/pkg/sqlguard"
)

type ValidateCmd struct{}

func NewValidateCmd() *ValidateCmd {
	return &ValidateCmd{}
}

func (c *ValidateCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <sql>",
		Short: "Check that SQL is a single read-only SELECT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := sqlguard.New().Validate(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				if err := json.NewEncoder(out).Encode(res); err != nil {
					return err
				}
			} else if res.Valid {
				fmt.Fprintln(out, "valid")
			}
			if !res.Valid {
				return errors.New(res.Error)
			}
			return nil
		},
	}
}
