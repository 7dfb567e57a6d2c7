package registration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"webhook-dispatcher/internal/filters"
	"webhook-dispatcher/internal/models"

	"github.com/google/uuid"
)

const (
	MinSecretLength = 16
	MaxSecretLength = 128

	componentID      = "IdValidator"
	componentSecret  = "SecretVerifier"
	componentFilters = "FilterVerifier"
	componentAddress = "AddressVerifier"
	componentLimit   = "RegistrationLimit"
	componentRequest = "RegistrationRequest"
)

// IDValidator assigns or checks the id of a webhook being registered.
type IDValidator interface {
	ValidateID(ctx context.Context, r *http.Request, webHook *models.WebHook) error
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// DefaultIDValidator assigns a dash-less uuid when no id was supplied and
// otherwise requires a short token of letters, digits, '-' and '_'.
type DefaultIDValidator struct{}

func (DefaultIDValidator) ValidateID(_ context.Context, _ *http.Request, w *models.WebHook) error {
	w.ID = strings.TrimSpace(w.ID)
	if w.ID == "" {
		w.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
		return nil
	}
	if !validID.MatchString(w.ID) {
		return models.NewValidationError(componentID, "webhook id %q must be 1-64 letters, digits, '-' or '_'", w.ID)
	}
	return nil
}

// VerifySecret generates a secret when none is set and checks the length
// of a supplied one in characters.
func VerifySecret(w *models.WebHook) error {
	if w.Secret == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return &models.ValidationError{Component: componentSecret, Message: "could not generate secret", Err: err}
		}
		w.Secret = secret
		return nil
	}
	n := utf8.RuneCountInString(w.Secret)
	if n < MinSecretLength || n > MaxSecretLength {
		return models.NewValidationError(componentSecret,
			"secret must be between %d and %d characters long", MinSecretLength, MaxSecretLength)
	}
	return nil
}

// GenerateSecret returns 32 random bytes hex encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// VerifyFilters drops client-supplied private filters, defaults an empty
// set to the wildcard and requires every remaining filter to be known.
func VerifyFilters(ctx context.Context, catalogue *filters.Manager, w *models.WebHook) error {
	filters.RemovePrivateFilters(w)
	w.NormalizeFilters()
	if len(w.Filters) == 0 {
		w.Filters = []string{models.WildcardFilter}
		return nil
	}

	all, err := catalogue.GetAllFilters(ctx)
	if err != nil {
		return &models.ValidationError{Component: componentFilters, Message: "filters are unavailable", Err: err}
	}
	var unknown []string
	for i, name := range w.Filters {
		f, ok := all[strings.ToLower(name)]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		// store the catalogue spelling
		w.Filters[i] = f.Name
	}
	if len(unknown) > 0 {
		return models.NewValidationError(componentFilters, "unknown filters: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// AddressVerifier checks that the receiver at the webhook URI is willing
// to accept deliveries.
type AddressVerifier interface {
	VerifyAddress(ctx context.Context, w *models.WebHook) error
}

// VerifyURI requires an absolute http(s) URI, and https when requireHTTPS.
func VerifyURI(w *models.WebHook, requireHTTPS bool) error {
	u, err := url.Parse(strings.TrimSpace(w.WebHookURI))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return models.NewValidationError(componentAddress, "webhook uri %q must be an absolute URI", w.WebHookURI)
	}
	scheme := strings.ToLower(u.Scheme)
	switch {
	case scheme != "http" && scheme != "https":
		return models.NewValidationError(componentAddress, "webhook uri scheme %q is not supported", u.Scheme)
	case requireHTTPS && scheme != "https":
		return models.NewValidationError(componentAddress, "webhook uri must use https")
	}
	w.WebHookURI = u.String()
	return nil
}

// EchoVerifier performs the echo handshake: GET <uri>?echo=<random> must
// answer 2xx with the echo value as its body.
type EchoVerifier struct {
	Client *http.Client
}

func (v EchoVerifier) VerifyAddress(ctx context.Context, w *models.WebHook) error {
	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	u, err := url.Parse(w.WebHookURI)
	if err != nil {
		return &models.ValidationError{Component: componentAddress, Message: "invalid webhook uri", Err: err}
	}
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return &models.ValidationError{Component: componentAddress, Message: "could not create echo", Err: err}
	}
	echo := hex.EncodeToString(token)
	q := u.Query()
	q.Set("echo", echo)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &models.ValidationError{Component: componentAddress, Message: "invalid webhook uri", Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &models.ValidationError{Component: componentAddress, Message: "webhook uri is not reachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.NewValidationError(componentAddress, "webhook uri answered the echo request with status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return &models.ValidationError{Component: componentAddress, Message: "could not read echo response", Err: err}
	}
	if strings.TrimSpace(string(body)) != echo {
		return models.NewValidationError(componentAddress, "webhook uri did not return the echo value")
	}
	return nil
}

// Registrar runs after validation and before the webhook is stored. It
// may add private filters or reject the registration.
type Registrar interface {
	Name() string
	Register(ctx context.Context, r *http.Request, w *models.WebHook) error
}

// StaticFilterRegistrar adds a fixed set of private filters to every
// registration.
type StaticFilterRegistrar struct {
	Filters []string
}

func (StaticFilterRegistrar) Name() string { return "StaticFilterRegistrar" }

func (s StaticFilterRegistrar) Register(_ context.Context, _ *http.Request, w *models.WebHook) error {
	for _, f := range s.Filters {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		w.AddFilter(filters.PrivateName(f))
	}
	return nil
}

func runRegistrars(ctx context.Context, registrars []Registrar, r *http.Request, w *models.WebHook) error {
	for _, reg := range registrars {
		if err := reg.Register(ctx, r, w); err != nil {
			return &models.RegistrarError{Registrar: reg.Name(), Err: err}
		}
	}
	return nil
}

func asValidation(component string, err error) error {
	if err == nil {
		return nil
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return &models.ValidationError{Component: component, Message: fmt.Sprintf("%s failed", component), Err: err}
}
