package auth

// StrategyKind names an authentication strategy in logs and errors.
type StrategyKind string

const (
	StrategyLocal    StrategyKind = "local"
	StrategyExternal StrategyKind = "external"
)

// Credentials is the closed set of inputs accepted by Authenticate. The
// only implementations are LocalCredentials and ExternalProfile.
type Credentials interface {
	Kind() StrategyKind
	isCredentials()
}

// LocalCredentials are a submitted username/password pair.
type LocalCredentials struct {
	Username string
	Password string
}

// Kind implements Credentials.
func (LocalCredentials) Kind() StrategyKind { return StrategyLocal }
func (LocalCredentials) isCredentials()     {}

// ExternalProfile is the profile an OAuth/OIDC provider returns after the
// authorization code exchange.
type ExternalProfile struct {
	ID          string
	DisplayName string
	Photos      []string
	Emails      []string
	Provider    string
}

// Kind implements Credentials.
func (ExternalProfile) Kind() StrategyKind { return StrategyExternal }
func (ExternalProfile) isCredentials()     {}

// Defaults used when a provider profile omits a field.
const (
	defaultDisplayName = "Unknown"
	defaultEmail       = "No public email"
)

// firstOr returns the first non-empty value of values, or fallback.
func firstOr(values []string, fallback string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return fallback
}
