package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SignupPolicy gates the public signup endpoint. It is reloaded from
// disk without a restart so operators can close signup during abuse
// spikes.
type SignupPolicy struct {
	Enabled             bool     `mapstructure:"enabled"`
	InviteCode          string   `mapstructure:"inviteCode"`
	AllowedEmailDomains []string `mapstructure:"allowedEmailDomains"`
}

func DefaultSignupPolicy() SignupPolicy {
	return SignupPolicy{
		Enabled:             true,
		InviteCode:          "",
		AllowedEmailDomains: nil,
	}
}

// RequiresInviteCode reports whether signup requests must carry an
// invite code header.
func (p SignupPolicy) RequiresInviteCode() bool {
	return strings.TrimSpace(p.InviteCode) != ""
}

// EmailDomainAllowed checks the allowlist. An empty allowlist admits
// every domain.
func (p SignupPolicy) EmailDomainAllowed(email string) bool {
	if len(p.AllowedEmailDomains) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	for _, allowed := range p.AllowedEmailDomains {
		if strings.EqualFold(strings.TrimSpace(allowed), domain) {
			return true
		}
	}
	return false
}

type SignupPolicyHolder struct {
	current atomic.Value // holds SignupPolicy
}

// NewSignupPolicyHolder loads signup.yml and watches it for changes.
func NewSignupPolicyHolder() (*SignupPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("signup")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/dispatchboard/config")
	v.AddConfigPath("/etc/dispatchboard")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DISPATCHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &SignupPolicyHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultSignupPolicy())
		return holder, nil
	}

	var policy SignupPolicy
	if err := v.UnmarshalKey("signup", &policy); err != nil {
		return nil, err
	}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SignupPolicy
		if err := v.UnmarshalKey("signup", &updated); err != nil {
			log.Printf("[signup-policy] reload failed: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[signup-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SignupPolicyHolder) Get() SignupPolicy {
	return h.current.Load().(SignupPolicy)
}

// Set replaces the active policy. Used by tests and ops tooling.
func (h *SignupPolicyHolder) Set(policy SignupPolicy) {
	h.current.Store(policy)
}

// NewStaticPolicyHolder wraps a fixed policy, for tests.
func NewStaticPolicyHolder(policy SignupPolicy) *SignupPolicyHolder {
	holder := &SignupPolicyHolder{}
	holder.current.Store(policy)
	return holder
}
