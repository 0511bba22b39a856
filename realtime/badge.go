package realtime

// Badge is the client-side tally kept current by folding events.
type Badge struct {
	UnreadNotifications int `json:"unread_notifications"`
	UnreadMessages      int `json:"unread_messages"`
	PointsBalance       int `json:"points_balance"`
	// PointsVersion is the ledger version PointsBalance was taken at.
	PointsVersion int64 `json:"points_version"`
}

// counters are the optional authoritative totals carried by some payloads.
type counters struct {
	UnreadCount *int   `json:"unread_count,omitempty"`
	Balance     *int   `json:"balance,omitempty"`
	Version     *int64 `json:"version,omitempty"`
}

// Apply folds one event into the badge. Authoritative totals in the payload win
// over incremental counting. Points events are published after commit and can
// arrive out of order, so a balance older than PointsVersion is dropped.
func (b Badge) Apply(e Event) Badge {
	var c counters
	_ = e.Decode(&c)

	switch e.Channel {
	case ChannelNotifications:
		switch {
		case c.UnreadCount != nil:
			b.UnreadNotifications = *c.UnreadCount
		case e.Kind == KindInsert:
			b.UnreadNotifications++
		}
	case ChannelMessages:
		switch {
		case c.UnreadCount != nil:
			b.UnreadMessages = *c.UnreadCount
		case e.Kind == KindInsert:
			b.UnreadMessages++
		}
	case ChannelPoints:
		if c.Balance == nil {
			break
		}
		if c.Version != nil {
			if *c.Version <= b.PointsVersion {
				break
			}
			b.PointsVersion = *c.Version
		}
		b.PointsBalance = *c.Balance
	}
	return b
}
