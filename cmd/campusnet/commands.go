package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"campusnet/internal/catalog"
	"campusnet/internal/config"
	"campusnet/internal/models"
	"campusnet/internal/monitor"
	"campusnet/internal/portal"
	"campusnet/internal/wifi"
)

const commandTimeout = 30 * time.Second

func newLoginCmd(flags *globalFlags) *cobra.Command {
	var ip string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the portal once with the account configured for the current network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			log := cliLogger(flags)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			adapter := wifi.NewPlatform(log, cfg.Wifi.Interface)
			info, err := loginAddress(ctx, adapter, ip, log)
			if err != nil {
				return err
			}

			ssid, err := wifi.CurrentSSID(ctx, adapter)
			if err != nil {
				log.V(1).Info("Could not read current SSID", "error", err.Error())
			}
			acct, ok := cfg.CredentialsFor(ssid)
			if !ok {
				return fmt.Errorf("no portal account configured for %q", ssid)
			}

			client := portal.New(cfg.Portal.ServerURL,
				portal.WithHTTPClient(&http.Client{Timeout: cfg.Portal.Timeout()}),
				portal.WithLogger(log),
			)
			res, err := client.Login(ctx, models.LoginConfig{
				UserAccount:  acct.Account,
				UserPassword: acct.Password,
				WlanUserIP:   info.IPv4,
				WlanUserIPv6: info.IPv6,
				WlanUserMAC:  info.MAC,
				ISP:          acct.ISP,
			})
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("portal rejected login: %s", res.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s on %s (%s)\n", acct.Account, orNone(ssid), info.IPv4)
			return nil
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "IPv4 address to authenticate (default: address on the default route)")
	return cmd
}

// loginAddress reads the local addresses for a portal login. An explicit ip
// wins, and discovery failing is then only logged since MAC and IPv6 are
// optional.
func loginAddress(ctx context.Context, adapter wifi.Adapter, ip string, log logr.Logger) (models.NetworkInfo, error) {
	info, err := adapter.NetworkInfo(ctx)
	if err != nil {
		if ip == "" {
			return models.NetworkInfo{}, fmt.Errorf("read network info: %w", err)
		}
		log.V(1).Info("Network discovery failed, using --ip only", "error", err.Error())
		info = models.NetworkInfo{}
	}
	if ip != "" {
		info.IPv4 = ip
	}
	if info.IPv4 == "" {
		return models.NetworkInfo{}, errors.New("no IPv4 address; pass --ip")
	}
	return info, nil
}

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	var ip string
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the portal session of this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			log := cliLogger(flags)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if ip == "" {
				info, err := wifi.NewPlatform(log, cfg.Wifi.Interface).NetworkInfo(ctx)
				if err != nil {
					return fmt.Errorf("read network info: %w", err)
				}
				ip = info.IPv4
			}

			client := portal.New(cfg.Portal.ServerURL,
				portal.WithHTTPClient(&http.Client{Timeout: cfg.Portal.Timeout()}),
				portal.WithLogger(log),
			)
			res, err := client.Logout(ctx, ip)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("portal rejected logout: %s", res.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out %s\n", ip)
			return nil
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "IPv4 address to log out (default: address on the default route)")
	return cmd
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe connectivity once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			log := cliLogger(flags)
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			prober := monitor.NewProber(cfg.Monitor.Endpoints,
				monitor.WithProbeTimeout(cfg.Monitor.Timeout()),
				monitor.WithLinkInfo(wifi.NewPlatform(log, cfg.Wifi.Interface)),
				monitor.WithProberLogger(log),
			)
			status, err := prober.Status(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func newProfilesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List configured WiFi profiles in failover order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			printProfiles(cmd.OutOrStdout(), catalog.New(cfg.Wifi.Profiles))
			return nil
		},
	}
}

func newScanCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List visible WiFi networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			networks, err := wifi.NewPlatform(cliLogger(flags), cfg.Wifi.Interface).Scan(ctx)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			known := catalog.New(cfg.Wifi.Profiles)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SSID\tSIGNAL\tSECURITY\tACTIVE\tPROFILE")
			for _, n := range networks {
				_, ok := known.Lookup(n.SSID)
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", n.SSID, n.Signal, orNone(n.Security), yesNo(n.Active), yesNo(ok))
			}
			return tw.Flush()
		},
	}
}

func printStatus(w io.Writer, s models.ConnectivityStatus) {
	state := "offline"
	if s.Connected {
		state = "online"
	}
	fmt.Fprintf(w, "Connectivity: %s\n", state)
	fmt.Fprintf(w, "SSID:         %s\n", orNone(s.SSID))
	fmt.Fprintf(w, "IPv4:         %s\n", orNone(s.IPv4))
	if s.IPv6 != "" {
		fmt.Fprintf(w, "IPv6:         %s\n", s.IPv6)
	}
	if s.Latency != nil {
		fmt.Fprintf(w, "Latency:      %dms via %s\n", s.Latency.Value, s.Latency.Source)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "Error:        %s\n", s.Error)
	}
}

func printProfiles(w io.Writer, cat *catalog.Catalog) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tSSID\tAUTO\tPORTAL\tACCOUNT")
	for _, p := range cat.ByPriority() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			strconv.Itoa(p.Priority), p.SSID, yesNo(p.AutoConnect), yesNo(p.RequiresAuth), orNone(p.LinkedAccountID))
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
