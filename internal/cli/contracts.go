package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewContractsCommand creates the contracts command.
func NewContractsCommand(rootOpts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "List the employee's contracts",
		Long: `List the contracts assigned to the employee. The list is fetched once per
day and cached; --refresh fetches it again. Check-ins recorded today stay
marked even when the server has not seen them yet.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.agent.RefreshContracts(cmd.Context(), refresh)
			if err != nil {
				return a.out.Fail("failed to load contracts", err)
			}
			return a.out.Success(list, func(w io.Writer) {
				if list.Error != "" {
					fmt.Fprintf(w, "refresh failed, showing cached list: %s\n", list.Error)
				}
				if list.RefreshedAt != "" {
					fmt.Fprintf(w, "refreshed at %s\n", list.RefreshedAt)
				}
				if len(list.Contracts) == 0 {
					fmt.Fprintln(w, "no contracts")
					return
				}
				for _, c := range list.Contracts {
					mark := " "
					if c.CheckedIn {
						mark = "x"
					}
					fmt.Fprintf(w, "[%s] %-12s %s\n", mark, c.LeaseNo, c.CustName)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the list even when today's copy is cached")
	return cmd
}
