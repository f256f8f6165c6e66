package tenants

// Credential is one configured tenant: the public key callers present plus the
// upstream credential pair exchanged for bearer tokens.
type Credential struct {
	Key          string `json:"key" yaml:"key"`
	ClientID     string `json:"corpid" yaml:"corpid"`         // upstream corp id
	ClientSecret string `json:"corpsecret" yaml:"corpsecret"` // upstream application secret
}

// MissingField names the first empty credential field ("clientid", "clientsecret"), or "".
func (c Credential) MissingField() string {
	switch {
	case c.ClientID == "":
		return "clientid"
	case c.ClientSecret == "":
		return "clientsecret"
	}
	return ""
}
