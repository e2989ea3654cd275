package usecase

import (
	"maps"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/faultline/internal/domain"
	"github.com/V4T54L/faultline/internal/fault"
)

// BuildInput is everything a caller knows about a fault at report time.
type BuildInput struct {
	Fault error
	// Callers is the stack at the report site, used when the fault carries none.
	Callers            []uintptr
	Tags               []string
	CustomData         map[string]any
	Request            *domain.RequestSnapshot
	User               *domain.UserIdentity
	ApplicationVersion string
}

type buildStep func(details *domain.ReportDetails, in BuildInput)

// BuildReportUseCase assembles reports.
type BuildReportUseCase struct {
	registry *fault.WrapperRegistry
	env      domain.EnvironmentProvider
	client   domain.ClientInfo
	clock    domain.Clock
	version  func() string
	steps    []buildStep
}

// NewBuildReportUseCase creates a new BuildReportUseCase.
func NewBuildReportUseCase(registry *fault.WrapperRegistry, env domain.EnvironmentProvider, client domain.ClientInfo, clock domain.Clock) *BuildReportUseCase {
	if clock == nil {
		clock = time.Now
	}
	uc := &BuildReportUseCase{
		registry: registry,
		env:      env,
		client:   client,
		clock:    clock,
		version:  buildVersion,
	}
	uc.steps = []buildStep{
		uc.setEnvironment,
		uc.setMachineName,
		uc.setFaultDetails,
		uc.setClientDetails,
		uc.setVersion,
		uc.setTags,
		uc.setCustomData,
		uc.setUser,
		uc.setRequest,
	}
	return uc
}

// Build assembles a report from in. The result shares no mutable state with in.
func (uc *BuildReportUseCase) Build(in BuildInput) domain.Report {
	report := domain.Report{
		ID:         uuid.NewString(),
		OccurredOn: uc.clock().UTC(),
	}
	for _, step := range uc.steps {
		step(&report.Details, in)
	}
	return report
}

func (uc *BuildReportUseCase) setEnvironment(d *domain.ReportDetails, _ BuildInput) {
	if uc.env != nil {
		d.Environment = uc.env.Environment()
	}
}

func (uc *BuildReportUseCase) setMachineName(d *domain.ReportDetails, _ BuildInput) {
	if uc.env != nil {
		d.MachineName = uc.env.MachineName()
	}
}

func (uc *BuildReportUseCase) setFaultDetails(d *domain.ReportDetails, in BuildInput) {
	err := uc.registry.Normalize(in.Fault)
	fallback := in.Callers
	// A stripped wrapper may be the only thing that saw the stack.
	if stack := fault.StackOf(in.Fault); len(stack) > 0 {
		fallback = stack
	}
	d.Error = fault.Summarize(err, fallback)
}

func (uc *BuildReportUseCase) setClientDetails(d *domain.ReportDetails, _ BuildInput) {
	d.Client = uc.client
}

func (uc *BuildReportUseCase) setVersion(d *domain.ReportDetails, in BuildInput) {
	if v := strings.TrimSpace(in.ApplicationVersion); v != "" {
		d.Version = v
		return
	}
	d.Version = uc.version()
}

func (uc *BuildReportUseCase) setTags(d *domain.ReportDetails, in BuildInput) {
	d.Tags = slices.Clone(in.Tags)
}

func (uc *BuildReportUseCase) setCustomData(d *domain.ReportDetails, in BuildInput) {
	d.UserCustomData = maps.Clone(in.CustomData)
}

func (uc *BuildReportUseCase) setUser(d *domain.ReportDetails, in BuildInput) {
	if in.User != nil {
		u := *in.User
		d.User = &u
	}
}

func (uc *BuildReportUseCase) setRequest(d *domain.ReportDetails, in BuildInput) {
	d.Request = in.Request
}

// buildVersion is the main module version of the running binary, resolved
// once per process.
var buildVersion = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return "unknown"
})
