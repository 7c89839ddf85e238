package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/tanakai/internal/source"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List capture devices",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInterfaces(pcapDevices{}, os.Stdout); err != nil {
			exitWithError("failed to list interfaces", err)
		}
	},
}

// DeviceLister lists capture devices.
type DeviceLister interface {
	Interfaces() ([]source.Interface, error)
}

type pcapDevices struct{}

func (pcapDevices) Interfaces() ([]source.Interface, error) {
	return source.Interfaces()
}

func runInterfaces(lister DeviceLister, out io.Writer) error {
	ifaces, err := lister.Interfaces()
	if err != nil {
		return err
	}
	if len(ifaces) == 0 {
		fmt.Fprintln(out, "no capture devices found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESSES\tDESCRIPTION")
	for _, iface := range ifaces {
		name := iface.Name
		if iface.Loopback {
			name += " (loopback)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, strings.Join(iface.Addresses, ","), iface.Description)
	}
	return tw.Flush()
}
