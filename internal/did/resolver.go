// Package did resolves a dapp's cryptographic identity and notify config
// from its domain's well-known documents (§4.2), caching both for the
// lifetime of the process.
package did

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/walletnotify/notify-engine/internal/errs"
)

const (
	didDocPath      = "/.well-known/did.json"
	notifyConfigPath = "/.well-known/wc-notify-config.json"

	fetchTimeout  = 6 * time.Second
	maxRedirects  = 5
)

// Keys is a dapp's resolved cryptographic identity (§3 Dapp Identity).
type Keys struct {
	KeyAgreementHex  string
	AuthenticationHex string
}

// NotifyType is one entry of a notify config's `types` array.
type NotifyType struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Config is a dapp's wc-notify-config.json (§3 Notify Config).
type Config struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Icons       []string     `json:"icons"`
	Types       []NotifyType `json:"types"`
}

// TypeNames returns every scope name a subscribe request may request.
func (c Config) TypeNames() []string {
	names := make([]string, len(c.Types))
	for i, t := range c.Types {
		names[i] = t.Name
	}
	return names
}

type didDocument struct {
	ID                 string              `json:"id"`
	KeyAgreement       []string            `json:"keyAgreement"`
	Authentication     []string            `json:"authentication"`
	VerificationMethod []verificationMethod `json:"verificationMethod"`
}

type verificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	PublicKeyJwk struct {
		X string `json:"x"`
	} `json:"publicKeyJwk"`
}

// Resolver fetches and caches dapp identities and notify configs. The zero
// value is not usable; construct with NewResolver.
type Resolver struct {
	client *http.Client

	mu      sync.RWMutex
	keys    map[string]Keys
	configs map[string]Config
}

// NewResolver returns a resolver with a bounded HTTP client (6s timeout,
// ≤5 redirects).
func NewResolver() *Resolver {
	return &Resolver{
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		keys:    make(map[string]Keys),
		configs: make(map[string]Config),
	}
}

// ResolveKeys returns dappUrl's key-agreement and authentication keys,
// fetching and parsing did.json on first call and serving the cache on
// every subsequent call for the same dappUrl (§4.2, §8 S6).
func (r *Resolver) ResolveKeys(ctx context.Context, dappURL string) (Keys, error) {
	r.mu.RLock()
	cached, ok := r.keys[dappURL]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	doc, err := r.fetchDidDoc(ctx, dappURL)
	if err != nil {
		return Keys{}, err
	}

	keys, err := parseDidDoc(doc)
	if err != nil {
		return Keys{}, err
	}

	r.mu.Lock()
	r.keys[dappURL] = keys
	r.mu.Unlock()
	return keys, nil
}

// ResolveNotifyConfig returns dappUrl's notify config, fetching
// wc-notify-config.json on first call and serving the cache thereafter.
func (r *Resolver) ResolveNotifyConfig(ctx context.Context, dappURL string) (Config, error) {
	r.mu.RLock()
	cached, ok := r.configs[dappURL]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var cfg Config
	if err := r.getJSON(ctx, dappURL+notifyConfigPath, &cfg); err != nil {
		return Config{}, errs.Wrap("ResolveNotifyConfig", errs.ConfigUnavailable, err)
	}

	r.mu.Lock()
	r.configs[dappURL] = cfg
	r.mu.Unlock()
	return cfg, nil
}

func (r *Resolver) fetchDidDoc(ctx context.Context, dappURL string) (didDocument, error) {
	var doc didDocument
	if err := r.getJSON(ctx, dappURL+didDocPath, &doc); err != nil {
		return didDocument{}, errs.Wrap("fetchDidDoc", errs.DidDocUnavailable, err)
	}
	return doc, nil
}

func (r *Resolver) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// parseDidDoc locates the verification methods named by did.keyAgreement[0]
// and did.authentication[0] and decodes their publicKeyJwk.x (§4.2).
func parseDidDoc(doc didDocument) (Keys, error) {
	if len(doc.KeyAgreement) == 0 || len(doc.Authentication) == 0 {
		return Keys{}, errs.New("parseDidDoc", errs.DidDocMalformed)
	}

	byID := make(map[string]verificationMethod, len(doc.VerificationMethod))
	for _, vm := range doc.VerificationMethod {
		byID[vm.ID] = vm
	}

	kaVM, ok := byID[doc.KeyAgreement[0]]
	if !ok {
		return Keys{}, errs.New("parseDidDoc", errs.VerificationMethodMissing)
	}
	authVM, ok := byID[doc.Authentication[0]]
	if !ok {
		return Keys{}, errs.New("parseDidDoc", errs.VerificationMethodMissing)
	}

	kaHex, err := jwkXToHex(kaVM.PublicKeyJwk.X)
	if err != nil {
		return Keys{}, errs.Wrap("parseDidDoc", errs.DidDocMalformed, err)
	}
	authHex, err := jwkXToHex(authVM.PublicKeyJwk.X)
	if err != nil {
		return Keys{}, errs.Wrap("parseDidDoc", errs.DidDocMalformed, err)
	}

	return Keys{KeyAgreementHex: kaHex, AuthenticationHex: authHex}, nil
}

func jwkXToHex(x string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
