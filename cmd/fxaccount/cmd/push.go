package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/fxaccount/push"
)

var (
	pushEndpoint     string
	pushDebug        bool
	pushService      string
	pushServiceData  string
	pushAppServerKey string
	pushListJSON     bool
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Manage push registrations and subscriptions",
	Long: `Commands for configuring a profile's autopush endpoint, registering the
user agent and opening or closing push channels.`,
}

var pushConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set the autopush endpoint and debug flag of a profile",
	Long: `Changing the endpoint unregisters the current user agent and drops its
subscriptions. Changing only the debug flag keeps them.`,
	Args: cobra.NoArgs,
	RunE: runPushConfigure,
}

var pushRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the user agent, or refresh a stale registration",
	Args:  cobra.NoArgs,
	RunE:  runPushRegister,
}

var pushSubscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Open a push channel for a service",
	Args:  cobra.NoArgs,
	RunE:  runPushSubscribe,
}

var pushUnsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <chid>",
	Short: "Close a push channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runPushUnsubscribe,
}

var pushListCmd = &cobra.Command{
	Use:   "list",
	Short: "List push registrations and their subscriptions",
	Args:  cobra.NoArgs,
	RunE:  runPushList,
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.AddCommand(pushConfigureCmd, pushRegisterCmd, pushSubscribeCmd, pushUnsubscribeCmd, pushListCmd)

	pushConfigureCmd.Flags().StringVar(&pushEndpoint, "endpoint", "", "Autopush endpoint (default from config)")
	pushConfigureCmd.Flags().BoolVar(&pushDebug, "debug", false, "Register with the debug sender ID")
	pushSubscribeCmd.Flags().StringVar(&pushService, "service", "", "Name of the service the channel belongs to")
	pushSubscribeCmd.Flags().StringVar(&pushServiceData, "service-data", "", "JSON object stored with the subscription")
	pushSubscribeCmd.Flags().StringVar(&pushAppServerKey, "app-server-key", "", "VAPID application server key")
	pushListCmd.Flags().BoolVar(&pushListJSON, "json", false, "Output as JSON")
	_ = pushSubscribeCmd.MarkFlagRequired("service")
}

func runPushConfigure(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	endpoint := pushEndpoint
	if endpoint == "" {
		endpoint = env.cfg.AutopushEndpoint
	}
	debug := env.cfg.PushDebug
	if cmd.Flags().Changed("debug") {
		debug = pushDebug
	}

	r, err := env.pushManager().Configure(cmd.Context(), profile, endpoint, debug, time.Now())
	if err != nil {
		return err
	}
	printRegistration(cmd.OutOrStdout(), profile, r)
	return nil
}

func runPushRegister(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	m := env.pushManager()
	if _, err := m.Startup(cmd.Context(), time.Now()); err != nil {
		return err
	}
	// Taken after Startup so a freshly issued token is not newer than the uaid.
	r, err := m.RegisterUserAgent(cmd.Context(), profile, time.Now())
	if err != nil {
		return err
	}
	printRegistration(cmd.OutOrStdout(), profile, r)
	return nil
}

func runPushSubscribe(cmd *cobra.Command, args []string) error {
	var serviceData map[string]any
	if pushServiceData != "" {
		if err := json.Unmarshal([]byte(pushServiceData), &serviceData); err != nil {
			return fmt.Errorf("parsing --service-data: %w", err)
		}
	}

	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	sub, err := env.pushManager().SubscribeChannel(cmd.Context(), profile, pushService, serviceData, pushAppServerKey, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", sub.ChannelID, sub.WebpushEndpoint)
	return nil
}

func runPushUnsubscribe(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	return env.pushManager().UnsubscribeChannel(cmd.Context(), args[0])
}

func runPushList(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	regs := make(map[string]*push.Registration)
	for _, p := range env.push.Profiles() {
		regs[p] = env.push.Registration(p)
	}
	if pushListJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(regs)
	}
	for _, p := range env.push.Profiles() {
		printRegistration(cmd.OutOrStdout(), p, regs[p])
	}
	return nil
}

func printRegistration(w io.Writer, profile string, r *push.Registration) {
	fmt.Fprintf(w, "Profile:  %s\n", profile)
	fmt.Fprintf(w, "Endpoint: %s (debug=%t)\n", r.AutopushEndpoint, r.Debug)
	if r.Registered() {
		fmt.Fprintf(w, "UAID:     %s (fetched %s)\n", r.UAID.Value, r.UAID.Timestamp.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "UAID:     not registered")
	}
	chids := make([]string, 0, len(r.Subscriptions))
	for chid := range r.Subscriptions {
		chids = append(chids, chid)
	}
	sort.Strings(chids)
	for _, chid := range chids {
		s := r.Subscriptions[chid]
		fmt.Fprintf(w, "  %s %s %s\n", chid, s.Service, s.WebpushEndpoint)
	}
}
