package platform

// Capability holds the static per-platform publishing rules. Instances are
// built at startup and read-only afterwards; adapters consult them in
// Validate/Format, callers can surface them over the API.
type Capability struct {
	// MaxBodyLen is the hard length limit for the formatted body text.
	// 0 means unlimited.
	MaxBodyLen int `json:"max_body_len,omitempty"`
	// MaxTitleLen is a soft title limit; exceeding it yields a warning.
	// 0 means unlimited.
	MaxTitleLen int `json:"max_title_len,omitempty"`
	// MaxHashtags is the recommended hashtag count; exceeding it yields a
	// warning, never an error. 0 means no guidance.
	MaxHashtags int `json:"max_hashtags,omitempty"`
	// HardBodyLimit marks MaxBodyLen as a blocking error instead of a
	// truncation warning.
	HardBodyLimit bool `json:"hard_body_limit,omitempty"`

	SupportsScheduling bool `json:"supports_scheduling"`
	SupportsAnalytics  bool `json:"supports_analytics"`

	// CredentialFields names the Credential fields this platform requires
	// ("access_token", "refresh_token", or keys of Credential.Extra).
	CredentialFields []string `json:"credential_fields,omitempty"`
}

// MissingCredentialFields reports which required fields are absent from the
// given credential. Used by adapters before any network call.
func (c Capability) MissingCredentialFields(cred Credential) []string {
	var missing []string
	for _, f := range c.CredentialFields {
		switch f {
		case "access_token":
			if cred.AccessToken == "" {
				missing = append(missing, f)
			}
		case "refresh_token":
			if cred.RefreshToken == "" {
				missing = append(missing, f)
			}
		default:
			if cred.Extra[f] == "" {
				missing = append(missing, f)
			}
		}
	}
	return missing
}
