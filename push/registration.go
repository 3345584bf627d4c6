package push

// Registration is the push registration of one profile. A nil UAID means
// configured but not yet registered.
type Registration struct {
	AutopushEndpoint string                   `json:"autopushEndpoint"`
	Debug            bool                     `json:"debug"`
	UAID             *Fetched                 `json:"uaid"`
	Secret           string                   `json:"secret,omitempty"`
	Subscriptions    map[string]*Subscription `json:"subscriptions"`
}

// NewRegistration returns a configured, unregistered Registration.
func NewRegistration(endpoint string, debug bool) *Registration {
	return &Registration{
		AutopushEndpoint: endpoint,
		Debug:            debug,
		Subscriptions:    make(map[string]*Subscription),
	}
}

// Registered reports whether the push server has issued a uaid.
func (r *Registration) Registered() bool {
	return r.UAID != nil
}

// Subscription returns the subscription for chid, or nil.
func (r *Registration) Subscription(chid string) *Subscription {
	return r.Subscriptions[chid]
}

// PutSubscription inserts or replaces a subscription keyed by its channel id.
func (r *Registration) PutSubscription(s *Subscription) {
	if r.Subscriptions == nil {
		r.Subscriptions = make(map[string]*Subscription)
	}
	r.Subscriptions[s.ChannelID] = s
}

// RemoveSubscription deletes chid and reports whether it was present.
func (r *Registration) RemoveSubscription(chid string) bool {
	_, ok := r.Subscriptions[chid]
	delete(r.Subscriptions, chid)
	return ok
}

// Clone returns a deep copy.
func (r *Registration) Clone() *Registration {
	if r == nil {
		return nil
	}
	c := *r
	if r.UAID != nil {
		uaid := *r.UAID
		c.UAID = &uaid
	}
	c.Subscriptions = make(map[string]*Subscription, len(r.Subscriptions))
	for chid, s := range r.Subscriptions {
		c.Subscriptions[chid] = s.Clone()
	}
	return &c
}
