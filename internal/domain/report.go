package domain

import "time"

// Report is a single fault occurrence as shipped to the collector.
// It is assembled once, serialized right away and never mutated afterwards.
type Report struct {
	ID         string        `json:"id"`
	OccurredOn time.Time     `json:"occurredOn"`
	Details    ReportDetails `json:"details"`
}

// ReportDetails carries everything known about the fault and its surroundings.
type ReportDetails struct {
	MachineName    string           `json:"machineName"`
	Version        string           `json:"version"`
	Client         ClientInfo       `json:"client"`
	Error          FaultSummary     `json:"error"`
	Environment    EnvironmentInfo  `json:"environment"`
	Tags           []string         `json:"tags,omitempty"`
	UserCustomData map[string]any   `json:"userCustomData,omitempty"`
	User           *UserIdentity    `json:"user,omitempty"`
	Request        *RequestSnapshot `json:"request,omitempty"`
}

// FaultSummary describes an error and, recursively, its cause.
type FaultSummary struct {
	ClassName  string        `json:"className"`
	Message    string        `json:"message"`
	StackTrace []StackFrame  `json:"stackTrace,omitempty"`
	InnerError *FaultSummary `json:"innerError,omitempty"`
}

// StackFrame is one resolved program counter.
type StackFrame struct {
	LineNumber int    `json:"lineNumber"`
	ClassName  string `json:"className"`
	MethodName string `json:"methodName"`
	FileName   string `json:"fileName"`
}

// EnvironmentInfo identifies the host the fault happened on.
type EnvironmentInfo struct {
	OSVersion       string  `json:"osVersion"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platformVersion,omitempty"`
	KernelVersion   string  `json:"kernelVersion,omitempty"`
	Architecture    string  `json:"architecture"`
	ProcessorCount  int     `json:"processorCount"`
	TotalMemoryMB   uint64  `json:"totalPhysicalMemory,omitempty"`
	FreeMemoryMB    uint64  `json:"availablePhysicalMemory,omitempty"`
	RuntimeVersion  string  `json:"runtimeVersion"`
	UptimeHours     float64 `json:"uptimeHours,omitempty"`
}

// ClientInfo identifies the reporting library.
type ClientInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	ClientURL string `json:"clientUrl"`
}

// UserIdentity describes the user affected by the fault.
type UserIdentity struct {
	Identifier  string `json:"identifier"`
	IsAnonymous bool   `json:"isAnonymous,omitempty"`
	Email       string `json:"email,omitempty"`
	FullName    string `json:"fullName,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	UUID        string `json:"uuid,omitempty"`
}
