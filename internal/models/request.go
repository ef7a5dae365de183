package models

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/utils/ptr"

	"deploy-orchestrator-go/internal/allocator"
	"deploy-orchestrator-go/internal/domain"
)

// Health check defaults applied when a request leaves a field unset.
const (
	DefaultLivenessPath          = "/health"
	DefaultReadinessPath         = "/ready"
	DefaultLivenessInitialDelay  = 30
	DefaultReadinessInitialDelay = 5
	DefaultHealthCheckPeriod     = 10
	DefaultHealthCheckTimeout    = 5
	DefaultFailureThreshold      = 3

	DefaultContainerPort    = 3000
	DefaultServicePort      = 8000
	DefaultMinReplicas      = 1
	DefaultMaxReplicas      = 10
	DefaultTargetCPUPercent = 70
)

// Defaults carries the operator-configured fallbacks for resource sizing.
type Defaults struct {
	Replicas      int32
	CPURequest    string
	CPULimit      string
	MemoryRequest string
	MemoryLimit   string
}

// WithDefaults returns a copy of r with every unset optional field filled in.
func (r DeploymentRequest) WithDefaults(d Defaults) DeploymentRequest {
	if r.DisplayName == "" {
		r.DisplayName = r.ServiceName
	}
	if r.ServiceType == "" {
		r.ServiceType = ServiceWeb
	}
	if r.ExposureType == "" {
		r.ExposureType = ExposureExternal
	}
	if r.ContainerPort == 0 {
		r.ContainerPort = DefaultContainerPort
	}
	if r.ServicePort == 0 {
		r.ServicePort = DefaultServicePort
	}
	if r.Replicas == 0 {
		r.Replicas = d.Replicas
	}
	r.CPURequest = firstNonEmpty(r.CPURequest, d.CPURequest)
	r.CPULimit = firstNonEmpty(r.CPULimit, d.CPULimit)
	r.MemoryRequest = firstNonEmpty(r.MemoryRequest, d.MemoryRequest)
	r.MemoryLimit = firstNonEmpty(r.MemoryLimit, d.MemoryLimit)

	if r.HealthCheckEnabled == nil {
		enabled := true
		r.HealthCheckEnabled = &enabled
	}
	if !r.LivenessCheckPath.Set {
		r.LivenessCheckPath = ProbePathOf(DefaultLivenessPath)
	}
	if !r.ReadinessCheckPath.Set {
		r.ReadinessCheckPath = ProbePathOf(DefaultReadinessPath)
	}
	if r.HealthCheckPort == 0 {
		r.HealthCheckPort = r.ContainerPort
	}
	if r.LivenessInitialDelay == nil {
		r.LivenessInitialDelay = ptr.To[int32](DefaultLivenessInitialDelay)
	}
	if r.ReadinessInitialDelay == nil {
		r.ReadinessInitialDelay = ptr.To[int32](DefaultReadinessInitialDelay)
	}
	if r.HealthCheckPeriod == 0 {
		r.HealthCheckPeriod = DefaultHealthCheckPeriod
	}
	if r.HealthCheckTimeout == 0 {
		r.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	if r.HealthCheckFailureThreshold == 0 {
		r.HealthCheckFailureThreshold = DefaultFailureThreshold
	}

	if r.EnableAutoscaling {
		if r.MinReplicas == 0 {
			r.MinReplicas = DefaultMinReplicas
		}
		if r.MaxReplicas == 0 {
			r.MaxReplicas = DefaultMaxReplicas
		}
		if r.TargetCPUPercent == 0 {
			r.TargetCPUPercent = DefaultTargetCPUPercent
		}
	}
	return r
}

// AppName is the lowercased service name used to name cluster resources.
func (r *DeploymentRequest) AppName() string {
	return strings.ToLower(r.ServiceName)
}

// Namespace returns the namespace allocated to the request's owner/project.
func (r *DeploymentRequest) Namespace() string {
	return allocator.Namespace(r.Owner, r.ProjectName)
}

// HealthChecksEnabled reports whether probes should be emitted at all.
func (r *DeploymentRequest) HealthChecksEnabled() bool {
	return r.HealthCheckEnabled == nil || *r.HealthCheckEnabled
}

// LivenessPath returns the liveness path, or "" when that probe is disabled.
func (r *DeploymentRequest) LivenessPath() string {
	if !r.HealthChecksEnabled() {
		return ""
	}
	if !r.LivenessCheckPath.Set {
		return DefaultLivenessPath
	}
	return r.LivenessCheckPath.Path
}

// ReadinessPath returns the readiness path, or "" when that probe is disabled.
func (r *DeploymentRequest) ReadinessPath() string {
	if !r.HealthChecksEnabled() {
		return ""
	}
	if !r.ReadinessCheckPath.Set {
		return DefaultReadinessPath
	}
	return r.ReadinessCheckPath.Path
}

// LivenessDelay returns the liveness initial delay in seconds.
func (r *DeploymentRequest) LivenessDelay() int32 {
	return ptr.Deref(r.LivenessInitialDelay, DefaultLivenessInitialDelay)
}

// ReadinessDelay returns the readiness initial delay in seconds.
func (r *DeploymentRequest) ReadinessDelay() int32 {
	return ptr.Deref(r.ReadinessInitialDelay, DefaultReadinessInitialDelay)
}

// HasStorage reports whether a persistent volume was requested.
func (r *DeploymentRequest) HasStorage() bool {
	return r.StorageSize != ""
}

// Validate checks a defaulted request and returns domain.ValidationErrors
// listing every offending field, or nil.
func (r *DeploymentRequest) Validate() error {
	var errs domain.ValidationErrors
	fail := func(field, format string, args ...interface{}) {
		errs = append(errs, domain.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	required := []struct {
		field, value string
	}{
		{"project_id", r.ProjectID},
		{"project_name", r.ProjectName},
		{"username", r.Owner},
		{"service_name", r.ServiceName},
		{"image_name", r.ImageName},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fail(f.field, "is required")
		}
	}

	if r.ServiceName != "" {
		// The longest derived name is the Service object, which must be a DNS-1035 label.
		for _, msg := range validation.IsDNS1035Label(r.AppName() + "-service") {
			fail("service_name", "%s", msg)
		}
	}
	if r.Owner != "" && r.ProjectName != "" {
		ns := r.Namespace()
		if ns == "" {
			fail("namespace", "owner and project name contain no usable characters")
		} else {
			for _, msg := range validation.IsDNS1123Label(ns) {
				fail("namespace", "%q: %s", ns, msg)
			}
		}
	}

	switch r.ExposureType {
	case ExposureNone, ExposureInternal, ExposureExternal:
	default:
		fail("exposure_type", "must be one of none, internal, external")
	}
	switch r.ServiceType {
	case ServiceWeb, ServiceAPI, ServiceWorker:
	default:
		fail("service_type", "must be one of web, api, worker")
	}

	checkPort := func(field string, port int32) {
		if port <= 0 || port > 65535 {
			fail(field, "must be between 1 and 65535")
		}
	}
	checkPort("container_port", r.ContainerPort)
	checkPort("service_port", r.ServicePort)
	if r.HealthChecksEnabled() {
		checkPort("health_check_port", r.HealthCheckPort)
	}

	if r.Replicas < 1 {
		fail("replicas", "must be at least 1")
	}

	quantities := []struct {
		field, value string
	}{
		{"cpu_request", r.CPURequest},
		{"cpu_limit", r.CPULimit},
		{"memory_request", r.MemoryRequest},
		{"memory_limit", r.MemoryLimit},
	}
	for _, q := range quantities {
		if _, err := resource.ParseQuantity(q.value); err != nil {
			fail(q.field, "%q is not a valid quantity", q.value)
		}
	}

	if r.CustomDomain != "" {
		for _, msg := range validation.IsDNS1123Subdomain(r.CustomDomain) {
			fail("custom_domain", "%s", msg)
		}
	}
	if r.CustomPath != "" && !strings.HasPrefix(r.CustomPath, "/") {
		fail("custom_path", "must start with /")
	}

	for _, key := range sortedKeys(r.EnvVars) {
		for _, msg := range validation.IsConfigMapKey(key) {
			fail("env_vars", "%q: %s", key, msg)
		}
	}
	for _, key := range sortedKeys(r.Secrets) {
		for _, msg := range validation.IsConfigMapKey(key) {
			fail("secrets", "%q: %s", key, msg)
		}
	}

	if r.HealthChecksEnabled() {
		probes := []struct {
			field, value string
		}{
			{"liveness_check_path", r.LivenessPath()},
			{"readiness_check_path", r.ReadinessPath()},
		}
		for _, p := range probes {
			if p.value != "" && !strings.HasPrefix(p.value, "/") {
				fail(p.field, "must start with /")
			}
		}
		timings := []struct {
			field string
			value int32
		}{
			{"liveness_initial_delay", r.LivenessDelay()},
			{"readiness_initial_delay", r.ReadinessDelay()},
			{"health_check_period", r.HealthCheckPeriod},
			{"health_check_timeout", r.HealthCheckTimeout},
			{"health_check_failure_threshold", r.HealthCheckFailureThreshold},
		}
		for _, tm := range timings {
			if tm.value < 0 {
				fail(tm.field, "must not be negative")
			}
		}
	}

	if r.HasStorage() {
		if _, err := resource.ParseQuantity(r.StorageSize); err != nil {
			fail("storage_size", "%q is not a valid quantity", r.StorageSize)
		}
		if r.StoragePath == "" || !path.IsAbs(r.StoragePath) {
			fail("storage_path", "must be an absolute path when storage_size is set")
		}
	}

	if r.EnableAutoscaling {
		if r.MinReplicas < 1 {
			fail("min_replicas", "must be at least 1")
		}
		if r.MaxReplicas < r.MinReplicas {
			fail("max_replicas", "must be greater than or equal to min_replicas")
		}
		if r.TargetCPUPercent < 1 || r.TargetCPUPercent > 100 {
			fail("target_cpu_percent", "must be between 1 and 100")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
