package cmd

import (
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/jmcleod/fxaccount/login"
)

const defaultMaxSteps = 5

var (
	passwordStdin bool
	maxSteps      int
	statusAll     bool
	statusJSON    bool
	logoutForget  bool
	assertionTTL  time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in and advance until the account is married or needs attention",
	Long: `Stretches the password locally, then advances the login state machine:
Engaged signs in and fetches keys, Cohabiting signs a certificate.
A Separated or MigratedFromSync11 profile for the same email is resumed.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the login state of a profile",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance the login state machine of a profile",
	Long: `Advances the stored state until it stops changing. A Married profile
whose certificate has expired is moved back to Cohabiting first so a new
certificate is signed.`,
	Args: cobra.NoArgs,
	RunE: runAdvance,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out a profile and remove its push registration",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var assertionCmd = &cobra.Command{
	Use:   "assertion <audience>",
	Short: "Print a signed identity assertion for audience",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssertion,
}

func init() {
	rootCmd.AddCommand(loginCmd, statusCmd, advanceCmd, logoutCmd, assertionCmd)

	loginCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	loginCmd.Flags().IntVar(&maxSteps, "max-steps", defaultMaxSteps, "Maximum number of transitions")
	advanceCmd.Flags().IntVar(&maxSteps, "max-steps", defaultMaxSteps, "Maximum number of transitions")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "Show every profile")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	logoutCmd.Flags().BoolVar(&logoutForget, "forget", false, "Delete the profile instead of keeping it Separated")
	assertionCmd.Flags().DurationVar(&assertionTTL, "ttl", login.DefaultAssertionTTL, "Assertion lifetime")
}

// initialLoginState picks the state a password login starts from.
func initialLoginState(existing login.State, email string, pw *memguard.LockedBuffer) (*login.Engaged, error) {
	if existing != nil && existing.Email() == email {
		switch s := existing.(type) {
		case *login.Separated:
			return s.Reauthenticate(pw)
		case *login.MigratedFromSync11:
			return s.FinishMigrating(pw)
		}
	}
	return login.NewEngagedFromPassword(email, "", pw)
}

func runLogin(cmd *cobra.Command, args []string) error {
	email := args[0]
	pw, err := readPassword(cmd, passwordStdin)
	if err != nil {
		return err
	}

	env, err := openEnvironment(cmd)
	if err != nil {
		pw.Destroy()
		return err
	}
	defer env.Close()

	engaged, err := initialLoginState(env.accounts.State(profile), email, pw)
	if err != nil {
		return err
	}
	m, err := env.machine(profile, engaged)
	if err != nil {
		return err
	}
	if err := m.SetState(engaged); err != nil {
		return err
	}

	s, err := m.AdvanceUntilStable(cmd.Context(), maxSteps)
	if err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), []statusView{newStatusView(profile, s, time.Now())}, false)
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	profiles := []string{profile}
	if statusAll {
		profiles = env.accounts.Profiles()
	}
	now := time.Now()
	views := make([]statusView, 0, len(profiles))
	for _, p := range profiles {
		s := env.accounts.State(p)
		if s == nil {
			if statusAll {
				continue
			}
			return fmt.Errorf("profile %q is not signed in", p)
		}
		views = append(views, newStatusView(p, s, now))
	}
	return printStatus(cmd.OutOrStdout(), views, statusJSON)
}

func runAdvance(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	m, err := env.machine(profile, nil)
	if err != nil {
		return err
	}
	if married, ok := m.State().(*login.Married); ok && married.CertificateExpired(time.Now()) {
		if err := m.SetState(married.WithoutCertificate()); err != nil {
			return err
		}
	}

	s, err := m.AdvanceUntilStable(cmd.Context(), maxSteps)
	if err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), []statusView{newStatusView(profile, s, time.Now())}, false)
}

func runLogout(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	s := env.accounts.State(profile)
	if s == nil {
		return fmt.Errorf("profile %q is not signed in", profile)
	}
	if err := env.pushManager().RemoveProfile(cmd.Context(), profile); err != nil {
		return fmt.Errorf("removing push registration: %w", err)
	}

	if logoutForget {
		env.accounts.DeleteState(profile)
		if err := env.accounts.Checkpoint(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile %s removed\n", profile)
		return nil
	}
	if err := env.accounts.PersistState(profile, login.Separate(s)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile %s signed out\n", profile)
	return nil
}

func runAssertion(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	m, err := env.machine(profile, nil)
	if err != nil {
		return err
	}
	now := time.Now()
	if married, ok := m.State().(*login.Married); ok && married.CertificateExpired(now.Add(assertionTTL)) {
		if err := m.SetState(married.WithoutCertificate()); err != nil {
			return err
		}
		if _, err := m.AdvanceUntilStable(cmd.Context(), defaultMaxSteps); err != nil {
			return err
		}
	}

	married, ok := m.State().(*login.Married)
	if !ok {
		s := m.State()
		return fmt.Errorf("profile %q is %s (%s), not Married", profile, s.Label(), s.NeededAction())
	}
	assertion, err := married.GenerateAssertion(args[0], now, assertionTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), assertion)
	return nil
}
