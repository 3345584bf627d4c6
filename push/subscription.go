package push

import "maps"

// Subscription is one push channel of a registration.
type Subscription struct {
	ChannelID       string         `json:"chid"`
	ProfileName     string         `json:"profileName"`
	WebpushEndpoint string         `json:"webpushEndpoint"`
	Service         string         `json:"service"`
	ServiceData     map[string]any `json:"serviceData,omitempty"`
}

func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.ServiceData = maps.Clone(s.ServiceData)
	return &c
}
