package reporter

import (
	"net/http"

	"github.com/V4T54L/faultline/internal/adapter/pii"
	"github.com/V4T54L/faultline/internal/domain"
	"github.com/V4T54L/faultline/internal/fault"
	"github.com/V4T54L/faultline/internal/pkg/config"
	"github.com/V4T54L/faultline/internal/usecase"
)

type (
	// Config is the client configuration, see LoadConfig.
	Config = config.Config
	// Report is an assembled fault report.
	Report = domain.Report
	// UserIdentity describes the user affected by a fault.
	UserIdentity = domain.UserIdentity
	// RequestContext is a request exposed as raw collections.
	RequestContext = pii.RequestContext
	// FieldCollection is one name/value group of a RequestContext.
	FieldCollection = pii.FieldCollection
	// ValidationError is what a FieldCollection returns for a rejected value.
	ValidationError = pii.ValidationError
	// PanicError is a recovered panic.
	PanicError = fault.PanicError

	Transport           = domain.Transport
	SpillQueue          = domain.SpillQueue
	ConnectivityOracle  = domain.ConnectivityOracle
	EnvironmentProvider = domain.EnvironmentProvider

	// Outcome is what happened to a report.
	Outcome = usecase.Outcome
)

const (
	OutcomeSent    = usecase.OutcomeSent
	OutcomeSpilled = usecase.OutcomeSpilled
	OutcomeDropped = usecase.OutcomeDropped
)

// LoadConfig reads the client configuration from the environment and .env.
func LoadConfig() (*Config, error) {
	return config.Load()
}

// NewHTTPRequest exposes r as a RequestContext.
func NewHTTPRequest(r *http.Request) RequestContext {
	return pii.NewHTTPRequest(r)
}
