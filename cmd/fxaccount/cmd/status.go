package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jmcleod/fxaccount/login"
)

// statusView is the printable summary of one profile's login state.
type statusView struct {
	Profile      string     `json:"profile"`
	State        string     `json:"state"`
	Email        string     `json:"email"`
	UID          string     `json:"uid,omitempty"`
	Verified     bool       `json:"verified"`
	NeededAction string     `json:"neededAction"`
	CertExpires  *time.Time `json:"certificateExpiresAt,omitempty"`
	CertExpired  bool       `json:"certificateExpired,omitempty"`
	ClientState  string     `json:"clientState,omitempty"`
}

func newStatusView(profile string, s login.State, now time.Time) statusView {
	v := statusView{
		Profile:      profile,
		State:        s.Label().String(),
		Email:        s.Email(),
		UID:          s.UID(),
		Verified:     s.Verified(),
		NeededAction: s.NeededAction().String(),
	}
	if m, ok := s.(*login.Married); ok {
		exp := m.CertificateExpiresAt()
		v.CertExpires = &exp
		v.CertExpired = m.CertificateExpired(now)
		v.ClientState = m.ClientState()
	}
	return v
}

func printStatus(w io.Writer, views []statusView, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	for i, v := range views {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Profile:  %s\n", v.Profile)
		fmt.Fprintf(w, "State:    %s\n", v.State)
		fmt.Fprintf(w, "Email:    %s\n", v.Email)
		if v.UID != "" {
			fmt.Fprintf(w, "UID:      %s\n", v.UID)
		}
		fmt.Fprintf(w, "Verified: %t\n", v.Verified)
		fmt.Fprintf(w, "Action:   %s\n", v.NeededAction)
		if v.CertExpires != nil {
			tag := ""
			if v.CertExpired {
				tag = " (expired)"
			}
			fmt.Fprintf(w, "Cert:     expires %s%s\n", v.CertExpires.UTC().Format(time.RFC3339), tag)
			fmt.Fprintf(w, "Client:   %s\n", v.ClientState)
		}
	}
	return nil
}
