// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quasar-kernel/quasar/lib/clock"
)

// frameworkNamespacePrefix gates which compilation namespaces survive
// into telemetry. User namespaces are population noise and a privacy
// hazard; framework namespaces measure feature usage.
const frameworkNamespacePrefix = "Microsoft.Quantum"

// knownPackagePrefix gates which package ids are reported verbatim.
const knownPackagePrefix = "microsoft.quantum"

// redactedPackageID replaces package ids outside the known prefix
// family, keeping population counts measurable without leaking
// private feed names.
const redactedPackageID = "other package"

// Runtime exposes the live collaborator state sampled into every
// record at build time. Values are recomputed per event, never
// cached.
//
// Implementations must be safe for concurrent use; record builders
// run on whatever goroutine raised the underlying event.
type Runtime interface {
	// ExecutionCount returns the number of cells executed so far.
	ExecutionCount() int

	// TargetID returns the active compute target id, or empty when no
	// target is set.
	TargetID() string

	// TargetCapability returns the active target's capability level.
	TargetCapability() string

	// SubscriptionID returns the active workspace subscription id, or
	// empty when not connected.
	SubscriptionID() string
}

// FixedRuntime is a Runtime with constant values. Tests and the
// telemetry probe use it; the kernel wires live accessors instead.
type FixedRuntime struct {
	Executions   int
	Target       string
	Capability   string
	Subscription string
}

func (r FixedRuntime) ExecutionCount() int      { return r.Executions }
func (r FixedRuntime) TargetID() string         { return r.Target }
func (r FixedRuntime) TargetCapability() string { return r.Capability }
func (r FixedRuntime) SubscriptionID() string   { return r.Subscription }

// Builder maps collaborator event payloads to named telemetry
// records. Each Build* method is a pure mapping from its payload plus
// a snapshot of the shared context and runtime state; the Builder
// itself holds no mutable state beyond those references.
type Builder struct {
	context *Context
	runtime Runtime
	clock   clock.Clock
	started time.Time
}

// NewBuilder creates a Builder. The process start reference for the
// TimeSinceStart common property is the clock's current time.
func NewBuilder(context *Context, runtime Runtime, clk clock.Clock) *Builder {
	return &Builder{
		context: context,
		runtime: runtime,
		clock:   clk,
		started: clk.Now(),
	}
}

// BuildTelemetryStarted is the startup marker emitted when the
// aggregator enters its active state. Common properties only.
func (b *Builder) BuildTelemetryStarted() Event {
	return b.finish("TelemetryStarted", nil)
}

// BuildKernelStopped is the final record emitted while draining.
func (b *Builder) BuildKernelStopped() Event {
	return b.finish("KernelStopped", nil)
}

// BuildServiceInitialized records one service construction.
func (b *Builder) BuildServiceInitialized(info ServiceInfo) Event {
	return b.finish("ServiceInitialized", map[string]Property{
		"Service": {Value: info.Service},
	})
}

// BuildWorkspaceReady records the workspace's initial load finishing.
func (b *Builder) BuildWorkspaceReady() Event {
	return b.finish("WorkspaceReady", nil)
}

// BuildWorkspaceReload records one reload pass. The workspace name is
// user-chosen and tagged accordingly.
func (b *Builder) BuildWorkspaceReload(info WorkspaceReloadInfo) Event {
	return b.finish("WorkspaceReload", map[string]Property{
		"Workspace":    {Value: info.Workspace, PII: PIIGenericData},
		"Status":       {Value: info.Status},
		"FileCount":    {Value: strconv.Itoa(info.FileCount)},
		"ProjectCount": {Value: strconv.Itoa(info.ProjectCount)},
		"Errors":       {Value: sortedCSV(info.Errors)},
		"Duration":     {Value: formatDuration(info.Duration)},
	})
}

// BuildCompile records one compilation. Namespaces outside the
// framework prefix are dropped before serialization.
func (b *Builder) BuildCompile(info CompileInfo) Event {
	var namespaces []string
	for _, namespace := range info.Namespaces {
		if strings.HasPrefix(namespace, frameworkNamespacePrefix) {
			namespaces = append(namespaces, namespace)
		}
	}
	return b.finish("Compile", map[string]Property{
		"Status":     {Value: info.Status},
		"Errors":     {Value: sortedCSV(info.Errors)},
		"Namespaces": {Value: sortedCSV(namespaces)},
		"Duration":   {Value: formatDuration(info.Duration)},
	})
}

// BuildPackageLoad records one package load. Ids outside the known
// prefix family are redacted.
func (b *Builder) BuildPackageLoad(info PackageLoadInfo) Event {
	id := info.ID
	if !strings.HasPrefix(strings.ToLower(id), knownPackagePrefix) {
		id = redactedPackageID
	}
	return b.finish("PackageLoad", map[string]Property{
		"PackageId":      {Value: id},
		"PackageVersion": {Value: info.Version},
		"Duration":       {Value: formatDuration(info.Duration)},
	})
}

// BuildProjectLoad records one project load. Project URIs embed user
// paths and are tagged as such.
func (b *Builder) BuildProjectLoad(info ProjectLoadInfo) Event {
	return b.finish("ProjectLoad", map[string]Property{
		"ProjectUri":            {Value: info.URI, PII: PIIURI},
		"SourceFileCount":       {Value: strconv.Itoa(info.SourceFileCount)},
		"ProjectReferenceCount": {Value: strconv.Itoa(info.ProjectReferenceCount)},
		"PackageReferenceCount": {Value: strconv.Itoa(info.PackageReferenceCount)},
		"UserAdded":             {Value: strconv.FormatBool(info.UserAdded)},
		"Duration":              {Value: formatDuration(info.Duration)},
	})
}

// BuildAction records one magic-command or help invocation.
func (b *Builder) BuildAction(info ActionInfo) Event {
	return b.finish("Action", map[string]Property{
		"Command":  {Value: info.Command},
		"Kind":     {Value: string(info.Kind)},
		"Status":   {Value: info.Status},
		"Duration": {Value: formatDuration(info.Duration)},
	})
}

// BuildCodeCompletion records one completion request.
func (b *Builder) BuildCodeCompletion(info CodeCompletionInfo) Event {
	return b.finish("CodeCompletion", map[string]Property{
		"NCompletions": {Value: strconv.Itoa(info.Count)},
		"Duration":     {Value: formatDuration(info.Duration)},
	})
}

// BuildExperimentalFeatureEnabled records an experimental feature
// opt-in.
func (b *Builder) BuildExperimentalFeatureEnabled(info ExperimentalFeatureInfo) Event {
	return b.finish("ExperimentalFeatureEnabled", map[string]Property{
		"FeatureName":          {Value: info.Name},
		"OptionalDependencies": {Value: sortedCSV(info.OptionalDependencies)},
	})
}

// BuildDeviceCapabilities records the host's capacity.
func (b *Builder) BuildDeviceCapabilities(info DeviceCapabilitiesInfo) Event {
	gib := float64(info.TotalMemoryBytes) / (1 << 30)
	return b.finish("DeviceCapabilities", map[string]Property{
		"NProcessors":      {Value: strconv.Itoa(info.Processors)},
		"TotalMemoryInGiB": {Value: strconv.FormatFloat(gib, 'f', 2, 64)},
	})
}

// BuildSimulatorPerformance records one simulator run.
func (b *Builder) BuildSimulatorPerformance(info SimulatorPerformanceInfo) Event {
	return b.finish("SimulatorPerformance", map[string]Property{
		"SimulatorName": {Value: info.Name},
		"NQubits":       {Value: strconv.Itoa(info.Qubits)},
		"Duration":      {Value: formatDuration(info.Duration)},
	})
}

// BuildKernelPerformance records a memory sample.
func (b *Builder) BuildKernelPerformance(info KernelPerformanceInfo) Event {
	return b.finish("KernelPerformance", map[string]Property{
		"ManagedRamUsed": {Value: strconv.FormatUint(info.ManagedRAMUsedBytes, 10)},
		"TotalRamUsed":   {Value: strconv.FormatUint(info.TotalRAMUsedBytes, 10)},
	})
}

// BuildConnectToWorkspace records one Azure connect attempt.
func (b *Builder) BuildConnectToWorkspace(info AzureConnectInfo) Event {
	return b.finish("ConnectToWorkspace", map[string]Property{
		"Status":           {Value: info.Status},
		"Error":            {Value: info.Error},
		"Location":         {Value: info.Location},
		"UseCustomStorage": {Value: strconv.FormatBool(info.UseCustomStorage)},
		"CredentialType":   {Value: info.CredentialType},
		"Duration":         {Value: formatDuration(info.Duration)},
	})
}

// finish merges the event-specific properties with the shared context
// snapshot and the common properties, producing the final record. The
// runtime is sampled here, at build time, so a record reflects the
// collaborator state when its event fired, not when it uploads.
func (b *Builder) finish(name string, properties map[string]Property) Event {
	merged := make(map[string]Property, len(properties)+8)

	for key, value := range b.context.Snapshot() {
		merged[key] = Property{Value: value}
	}
	for key, property := range properties {
		merged[key] = property
	}

	merged["SessionId"] = Property{Value: b.context.SessionID()}
	merged["ExecutionCount"] = Property{Value: strconv.Itoa(b.runtime.ExecutionCount())}
	merged["ActiveTargetId"] = Property{Value: b.runtime.TargetID()}
	merged["ActiveTargetCapability"] = Property{Value: b.runtime.TargetCapability()}
	merged["SubscriptionId"] = Property{Value: b.runtime.SubscriptionID(), PII: PIIGenericData}
	merged["TimeSinceStart"] = Property{Value: formatDuration(b.clock.Now().Sub(b.started))}

	return Event{Name: name, Properties: merged}
}

// sortedCSV joins values as a comma-separated list in lexicographic
// order, so records are deterministic regardless of arrival order.
func sortedCSV(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// formatDuration renders a duration as a fixed, locale-independent
// hh:mm:ss.mmm string. Negative durations clamp to zero.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	millis := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
