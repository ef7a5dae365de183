package models

import (
	"time"

	"deploy-orchestrator-go/internal/domain"
)

type ExposureType string

const (
	ExposureNone     ExposureType = "none"
	ExposureInternal ExposureType = "internal"
	ExposureExternal ExposureType = "external"
)

type ServiceType string

const (
	ServiceWeb    ServiceType = "web"
	ServiceAPI    ServiceType = "api"
	ServiceWorker ServiceType = "worker"
)

// DeploymentRequest is the declarative "run this service" input. It is treated
// as immutable once accepted; WithDefaults returns a filled-in copy.
//
// Health check paths are tri-state: an absent field means "use the default
// path", while null or an empty string disables that probe. Initial delays are
// pointers so an explicit 0 survives defaulting.
type DeploymentRequest struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Owner       string `json:"username"`
	ServiceName string `json:"service_name"`
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
	ImageName   string `json:"image_name"`

	ServiceType  ServiceType  `json:"service_type,omitempty"`
	ExposureType ExposureType `json:"exposure_type,omitempty"`

	ContainerPort int32 `json:"container_port,omitempty"`
	ServicePort   int32 `json:"service_port,omitempty"`

	Replicas      int32  `json:"replicas,omitempty"`
	CPURequest    string `json:"cpu_request,omitempty"`
	CPULimit      string `json:"cpu_limit,omitempty"`
	MemoryRequest string `json:"memory_request,omitempty"`
	MemoryLimit   string `json:"memory_limit,omitempty"`

	CustomDomain string `json:"custom_domain,omitempty"`
	CustomPath   string `json:"custom_path,omitempty"`
	EnableHTTPS  bool   `json:"enable_https,omitempty"`

	EnvVars map[string]string `json:"env_vars,omitempty"`
	Secrets map[string]string `json:"secrets,omitempty"`

	HealthCheckEnabled          *bool   `json:"health_check_enabled,omitempty"`
	LivenessCheckPath           ProbePath `json:"liveness_check_path"`
	ReadinessCheckPath          ProbePath `json:"readiness_check_path"`
	HealthCheckPort             int32     `json:"health_check_port,omitempty"`
	LivenessInitialDelay        *int32    `json:"liveness_initial_delay,omitempty"`
	ReadinessInitialDelay       *int32    `json:"readiness_initial_delay,omitempty"`
	HealthCheckPeriod           int32     `json:"health_check_period,omitempty"`
	HealthCheckTimeout          int32     `json:"health_check_timeout,omitempty"`
	HealthCheckFailureThreshold int32     `json:"health_check_failure_threshold,omitempty"`

	StorageSize string `json:"storage_size,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`

	EnableAutoscaling bool  `json:"enable_autoscaling,omitempty"`
	MinReplicas       int32 `json:"min_replicas,omitempty"`
	MaxReplicas       int32 `json:"max_replicas,omitempty"`
	TargetCPUPercent  int32 `json:"target_cpu_percent,omitempty"`
}

type DeployResponse struct {
	DeploymentID       string        `json:"deployment_id"`
	ProjectID          string        `json:"project_id"`
	ServiceName        string        `json:"service_name"`
	Status             domain.Status `json:"status"`
	ImageName          string        `json:"image_name"`
	Namespace          string        `json:"namespace"`
	CreatedAt          time.Time     `json:"created_at"`
	ManifestsGenerated []string      `json:"manifests_generated"`
	AccessURL          string        `json:"access_url,omitempty"`
}

type DeploymentStatusResponse struct {
	DeploymentID  string        `json:"deployment_id"`
	ProjectID     string        `json:"project_id"`
	ProjectName   string        `json:"project_name"`
	Owner         string        `json:"username"`
	ServiceName   string        `json:"service_name"`
	DisplayName   string        `json:"display_name,omitempty"`
	Status        domain.Status `json:"status"`
	ImageName     string        `json:"image_name"`
	Namespace     string        `json:"namespace"`
	ReplicasReady int32         `json:"replicas_ready"`
	ReplicasTotal int32         `json:"replicas_total"`
	ManifestTypes []string      `json:"manifests_generated"`
	AccessURL     string        `json:"access_url,omitempty"`
	HealthCheck   HealthSummary `json:"health_check"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

type HealthSummary struct {
	Enabled       bool   `json:"enabled"`
	LivenessPath  string `json:"liveness_path,omitempty"`
	ReadinessPath string `json:"readiness_path,omitempty"`
}

// NewDeploymentStatusResponse renders a record for the API.
func NewDeploymentStatusResponse(rec *domain.Record) DeploymentStatusResponse {
	types := rec.ManifestTypes
	if types == nil {
		types = []string{}
	}
	return DeploymentStatusResponse{
		DeploymentID:  rec.ID,
		ProjectID:     rec.ProjectID,
		ProjectName:   rec.ProjectName,
		Owner:         rec.Owner,
		ServiceName:   rec.ServiceName,
		DisplayName:   rec.DisplayName,
		Status:        rec.Status,
		ImageName:     rec.ImageReference,
		Namespace:     rec.Namespace,
		ReplicasReady: rec.ReplicasReady,
		ReplicasTotal: rec.ReplicasDesired,
		ManifestTypes: types,
		AccessURL:     rec.AccessURL,
		HealthCheck: HealthSummary{
			Enabled:       rec.HealthCheck.Enabled,
			LivenessPath:  rec.HealthCheck.LivenessPath,
			ReadinessPath: rec.HealthCheck.ReadinessPath,
		},
		ErrorMessage: rec.ErrorMessage,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		StartedAt:    rec.StartedAt,
		CompletedAt:  rec.CompletedAt,
	}
}

type ManifestsResponse struct {
	DeploymentID string            `json:"deployment_id"`
	Order        []string          `json:"order"`
	Manifests    map[string]string `json:"manifests"`
}

type DeploymentListResponse struct {
	ProjectID   string                     `json:"project_id"`
	Deployments []DeploymentStatusResponse `json:"deployments"`
	Total       int                        `json:"total"`
	Limit       int                        `json:"limit"`
	Offset      int                        `json:"offset"`
}

type StopResponse struct {
	DeploymentID     string        `json:"deployment_id"`
	Status           domain.Status `json:"status"`
	NamespaceDeleted bool          `json:"namespace_deleted"`
}

// StatusResponse is the service-wide report served on /api/v1/status.
type StatusResponse struct {
	Service             string         `json:"service"`
	Deployments         map[string]int `json:"deployments"`
	Total               int            `json:"total"`
	ActiveTasks         int            `json:"active_tasks"`
	KubernetesConnected bool           `json:"kubernetes_connected"`
	IsLeader            bool           `json:"is_leader"`
	ReadinessTimeout    string         `json:"readiness_timeout"`
	DefaultHost         string         `json:"default_host"`
	Timestamp           time.Time      `json:"timestamp"`
}

type HealthResponse struct {
	Status              string    `json:"status"`
	Service             string    `json:"service"`
	Timestamp           time.Time `json:"timestamp"`
	KubernetesConnected bool      `json:"kubernetes_connected"`
}

type ReadyResponse struct {
	Status              string `json:"status"`
	KubernetesAvailable bool   `json:"kubernetes_available"`
	DatabaseAvailable   bool   `json:"database_available"`
}
