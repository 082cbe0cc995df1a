package config

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

// acmeUser implements lego's registration.User with a throwaway account
// key generated fresh per provisioning run, since PAGI does not persist
// ACME accounts across process restarts.
type acmeUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// fileHTTP01Provider registers each ACME HTTP-01 challenge response on an
// in-process http.ServeMux, exposed through ChallengeHandler, rather than
// delegating to a sibling agent. It does not serve that mux itself, and no
// code in this module mounts it on a listener.
type fileHTTP01Provider struct {
	mux *http.ServeMux
}

func newFileHTTP01Provider() *fileHTTP01Provider {
	return &fileHTTP01Provider{mux: http.NewServeMux()}
}

func (p *fileHTTP01Provider) Present(domainName, token, keyAuth string) error {
	p.mux.HandleFunc(http01.ChallengePath(token), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(keyAuth))
	})
	return nil
}

func (p *fileHTTP01Provider) CleanUp(domainName, token, keyAuth string) error {
	return nil
}

// ChallengeHandler exposes the in-progress ACME challenge set as an
// http.Handler the server can mount at "/.well-known/acme-challenge/"
// ahead of normal PAGI dispatch.
func (p *fileHTTP01Provider) ChallengeHandler() http.Handler { return p.mux }

// ObtainACMECertificate runs the lego HTTP-01 flow for cfg.TLS.ACMEDomain
// and returns a tls.Certificate ready for tls.Config.Certificates, grounded
// on core/services/ssl_service.go's ProvisionCert flow.
func ObtainACMECertificate(t TLS) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("acme key generation failed: %w", err)
	}
	user := &acmeUser{email: t.ACMEEmail, key: key}

	legoCfg := lego.NewConfig(user)
	client, err := lego.NewClient(legoCfg)
	if err != nil {
		return nil, fmt.Errorf("acme client setup failed: %w", err)
	}

	provider := newFileHTTP01Provider()
	if err := client.Challenge.SetHTTP01Provider(provider); err != nil {
		return nil, fmt.Errorf("acme provider setup failed: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("acme registration failed: %w", err)
	}
	user.registration = reg

	certs, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{t.ACMEDomain},
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("acme certificate obtainment failed: %w", err)
	}

	pair, err := tls.X509KeyPair(certs.Certificate, certs.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("acme certificate parse failed: %w", err)
	}
	return &pair, nil
}

// LoadTLSConfig builds a *tls.Config for t, either from static cert/key
// files (the common path, stdlib crypto/tls — no library can do less than
// the standard library here) or by provisioning one via ACME when only an
// email+domain pair is configured.
func LoadTLSConfig(t TLS) (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}
	if t.CertFile != "" && t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading tls cert/key: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
	}
	cert, err := ObtainACMECertificate(t)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{*cert}, MinVersion: tls.VersionTLS12}, nil
}
