package k8s

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

// ControlPlane is the set of cluster operations the orchestrator needs.
// Every CreateOrReplace call creates the object, or replaces it in place when
// it already exists.
type ControlPlane interface {
	Ping(ctx context.Context) error

	NamespaceExists(ctx context.Context, name string) (bool, error)
	GetNamespace(ctx context.Context, name string) (*corev1.Namespace, error)
	CreateOrReplaceNamespace(ctx context.Context, ns *corev1.Namespace) error
	DeleteNamespace(ctx context.Context, name string) error

	CreateOrReplaceConfigMap(ctx context.Context, cm *corev1.ConfigMap) error
	CreateOrReplaceSecret(ctx context.Context, secret *corev1.Secret) error
	CreateOrReplacePVC(ctx context.Context, pvc *corev1.PersistentVolumeClaim) error
	CreateOrReplaceWorkload(ctx context.Context, deploy *appsv1.Deployment) error
	CreateOrReplaceService(ctx context.Context, svc *corev1.Service) error
	CreateOrReplaceIngress(ctx context.Context, ing *networkingv1.Ingress) error
	CreateOrReplaceAutoscaler(ctx context.Context, hpa *autoscalingv2.HorizontalPodAutoscaler) error

	GetWorkloadStatus(ctx context.Context, name, namespace string) (*WorkloadStatus, error)
}

// WorkloadStatus is the replica picture of a Deployment.
type WorkloadStatus struct {
	Total      int32
	Ready      int32
	Available  int32
	Updated    int32
	Conditions []Condition
}

// Condition mirrors one Deployment condition.
type Condition struct {
	Type    string
	Status  string
	Reason  string
	Message string
}

// IsReady reports whether every desired replica is ready, and at least one is.
func (s *WorkloadStatus) IsReady() bool {
	return s != nil && s.Ready > 0 && s.Ready == s.Total
}

var _ ControlPlane = (*Client)(nil)
