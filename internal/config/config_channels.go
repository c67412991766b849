package config

// ChannelsConfig contains per-channel webhook configuration.
type ChannelsConfig struct {
	Wati     WebhookChannelConfig `json:"wati"`
	ManyChat WebhookChannelConfig `json:"manychat"`
	Generic  WebhookChannelConfig `json:"generic"`
}

// WebhookChannelConfig is shared by every inbound webhook channel.
type WebhookChannelConfig struct {
	Enabled       bool                `json:"enabled"`
	AllowFrom     FlexibleStringSlice `json:"allow_from,omitempty"`
	WebhookSecret string              `json:"webhook_secret,omitempty"` // checked against the X-Webhook-Secret header
}

// EnabledNames returns the names of enabled channels in a stable order.
func (cc ChannelsConfig) EnabledNames() []string {
	var out []string
	if cc.Wati.Enabled {
		out = append(out, "wati")
	}
	if cc.ManyChat.Enabled {
		out = append(out, "manychat")
	}
	if cc.Generic.Enabled {
		out = append(out, "generic")
	}
	return out
}
