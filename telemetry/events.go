// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "time"

// Lifecycle topics published by kernel subsystems. The Aggregator
// registers exactly one handler per topic; the payload type each
// topic carries is documented alongside it.
const (
	// TopicServiceInitialized carries a ServiceInfo each time a
	// kernel service finishes construction.
	TopicServiceInitialized = "service.initialized"

	// TopicWorkspaceReady carries no payload; the workspace has
	// finished its initial load.
	TopicWorkspaceReady = "workspace.ready"

	// TopicWorkspaceReload carries a WorkspaceReloadInfo.
	TopicWorkspaceReload = "workspace.reload"

	// TopicPackageLoad carries a PackageLoadInfo.
	TopicPackageLoad = "package.load"

	// TopicProjectLoad carries a ProjectLoadInfo.
	TopicProjectLoad = "project.load"

	// TopicCompile carries a CompileInfo.
	TopicCompile = "compile"

	// TopicActionExecuted carries an ActionInfo for a magic-command
	// execution.
	TopicActionExecuted = "action.executed"

	// TopicHelpExecuted carries an ActionInfo for a help lookup.
	TopicHelpExecuted = "help.executed"

	// TopicCodeCompletion carries a CodeCompletionInfo.
	TopicCodeCompletion = "completion.provided"

	// TopicExperimentalFeature carries an ExperimentalFeatureInfo.
	TopicExperimentalFeature = "experimental.enabled"

	// TopicDeviceCapabilities carries a DeviceCapabilitiesInfo.
	TopicDeviceCapabilities = "device.capabilities"

	// TopicSimulatorPerformance carries a SimulatorPerformanceInfo.
	TopicSimulatorPerformance = "simulator.performance"

	// TopicKernelPerformance carries a KernelPerformanceInfo.
	TopicKernelPerformance = "kernel.performance"

	// TopicAzureConnect carries an AzureConnectInfo.
	TopicAzureConnect = "azure.connect"

	// TopicClientMetadata carries a ClientMetadataChange raised by
	// the metadata controller. Only allow-listed property names are
	// mirrored into the shared context.
	TopicClientMetadata = "client.metadata"

	// TopicKernelStopped carries no payload and moves the aggregator
	// into its draining state.
	TopicKernelStopped = "kernel.stopped"
)

// ServiceInfo announces an initialized kernel service.
type ServiceInfo struct {
	// Service is the namespace-qualified type name of the service
	// implementation.
	Service string
}

// WorkspaceReloadInfo summarizes one workspace reload pass.
type WorkspaceReloadInfo struct {
	Workspace    string
	Status       string
	FileCount    int
	ProjectCount int
	Errors       []string
	Duration     time.Duration
}

// PackageLoadInfo summarizes loading one package.
type PackageLoadInfo struct {
	ID       string
	Version  string
	Duration time.Duration
}

// ProjectLoadInfo summarizes loading one project file.
type ProjectLoadInfo struct {
	URI                   string
	SourceFileCount       int
	ProjectReferenceCount int
	PackageReferenceCount int

	// UserAdded is true for projects added explicitly by the user, as
	// opposed to discovered project references.
	UserAdded bool

	Duration time.Duration
}

// CompileInfo summarizes one compilation.
type CompileInfo struct {
	Status string

	// Errors holds diagnostic codes, not message text.
	Errors []string

	// Namespaces holds every namespace defined by the compilation.
	// Only well-known framework namespaces survive into telemetry.
	Namespaces []string

	Duration time.Duration
}

// ActionKind distinguishes how a command was invoked.
type ActionKind string

const (
	ActionKindMagic ActionKind = "Magic"
	ActionKindHelp  ActionKind = "Help"
)

// ActionInfo summarizes one magic-command or help invocation.
type ActionInfo struct {
	Command  string
	Kind     ActionKind
	Status   string
	Duration time.Duration
}

// CodeCompletionInfo summarizes one completion request.
type CodeCompletionInfo struct {
	Count    int
	Duration time.Duration
}

// ExperimentalFeatureInfo announces an opted-in experimental feature.
type ExperimentalFeatureInfo struct {
	Name                 string
	OptionalDependencies []string
}

// DeviceCapabilitiesInfo describes the host the kernel runs on.
type DeviceCapabilitiesInfo struct {
	Processors       int
	TotalMemoryBytes uint64
}

// SimulatorPerformanceInfo summarizes one simulator run.
type SimulatorPerformanceInfo struct {
	Name     string
	Qubits   int
	Duration time.Duration
}

// KernelPerformanceInfo is a point-in-time memory sample.
type KernelPerformanceInfo struct {
	ManagedRAMUsedBytes uint64
	TotalRAMUsedBytes   uint64
}

// AzureConnectInfo summarizes one connect-to-workspace attempt.
type AzureConnectInfo struct {
	Status string

	// Error is the failure classification, empty on success.
	Error string

	Location         string
	UseCustomStorage bool
	CredentialType   string
	Duration         time.Duration
}

// ClientMetadataChange is one (name, value) notification from the
// metadata controller.
type ClientMetadataChange struct {
	Name  string
	Value string
}
