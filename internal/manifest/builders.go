package manifest

import (
	"fmt"
	"regexp"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	"deploy-orchestrator-go/internal/models"
)

const (
	containerPortName = "http"
	storageVolumeName = "storage"
)

type builder struct {
	opts      Options
	req       *models.DeploymentRequest
	id        string
	accessURL string
	namespace string
	app       string
	types     map[Type]bool
}

func newBuilder(opts Options, req *models.DeploymentRequest, id, accessURL string) *builder {
	types := make(map[Type]bool)
	for _, t := range Types(req) {
		types[t] = true
	}
	return &builder{
		opts:      opts,
		req:       req,
		id:        id,
		accessURL: accessURL,
		namespace: req.Namespace(),
		app:       req.AppName(),
		types:     types,
	}
}

func (b *builder) build(t Type) (runtime.Object, error) {
	switch t {
	case TypeNamespace:
		return b.namespaceObject(), nil
	case TypeWorkload:
		return b.workload()
	case TypeService:
		return b.service(), nil
	case TypeIngress:
		return b.ingress(), nil
	case TypeConfigMap:
		return b.configMap(), nil
	case TypeSecret:
		return b.secret(), nil
	case TypePVC:
		return b.pvc()
	case TypeAutoscaler:
		return b.autoscaler(), nil
	default:
		return nil, fmt.Errorf("unknown resource type %q", t)
	}
}

func (b *builder) meta(name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:        name,
		Namespace:   b.namespace,
		Labels:      resourceLabels(b.req, b.id),
		Annotations: resourceAnnotations(b.req, b.id, b.accessURL),
	}
}

func (b *builder) namespaceObject() *corev1.Namespace {
	return &corev1.Namespace{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        b.namespace,
			Labels:      namespaceLabels(b.req),
			Annotations: namespaceAnnotations(b.req),
		},
	}
}

func (b *builder) workload() (*appsv1.Deployment, error) {
	resources, err := b.resources()
	if err != nil {
		return nil, err
	}

	container := corev1.Container{
		Name:            b.app,
		Image:           b.req.ImageName,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Ports: []corev1.ContainerPort{{
			Name:          containerPortName,
			ContainerPort: b.req.ContainerPort,
			Protocol:      corev1.ProtocolTCP,
		}},
		Resources:      resources,
		LivenessProbe:  b.probe(b.req.LivenessPath(), b.req.LivenessDelay()),
		ReadinessProbe: b.probe(b.req.ReadinessPath(), b.req.ReadinessDelay()),
	}
	if b.types[TypeConfigMap] {
		container.EnvFrom = append(container.EnvFrom, corev1.EnvFromSource{
			ConfigMapRef: &corev1.ConfigMapEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: configMapName(b.req)},
			},
		})
	}
	if b.types[TypeSecret] {
		container.EnvFrom = append(container.EnvFrom, corev1.EnvFromSource{
			SecretRef: &corev1.SecretEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: secretName(b.req)},
			},
		})
	}

	podSpec := corev1.PodSpec{Containers: []corev1.Container{container}}
	if b.types[TypePVC] {
		podSpec.Containers[0].VolumeMounts = []corev1.VolumeMount{{
			Name:      storageVolumeName,
			MountPath: b.req.StoragePath,
		}}
		podSpec.Volumes = []corev1.Volume{{
			Name: storageVolumeName,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: pvcName(b.req)},
			},
		}}
	}
	if b.opts.ImagePullSecret != "" {
		podSpec.ImagePullSecrets = []corev1.LocalObjectReference{{Name: b.opts.ImagePullSecret}}
	}

	meta := b.meta(b.app)
	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: meta,
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(b.req.Replicas),
			Selector: &metav1.LabelSelector{MatchLabels: selectorLabels(b.req)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      meta.Labels,
					Annotations: meta.Annotations,
				},
				Spec: podSpec,
			},
		},
	}, nil
}

func (b *builder) resources() (corev1.ResourceRequirements, error) {
	parse := func(field, value string) (resource.Quantity, error) {
		q, err := resource.ParseQuantity(value)
		if err != nil {
			return resource.Quantity{}, fmt.Errorf("%s %q: %w", field, value, err)
		}
		return q, nil
	}

	cpuReq, err := parse("cpu_request", b.req.CPURequest)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}
	cpuLim, err := parse("cpu_limit", b.req.CPULimit)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}
	memReq, err := parse("memory_request", b.req.MemoryRequest)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}
	memLim, err := parse("memory_limit", b.req.MemoryLimit)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}

	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{corev1.ResourceCPU: cpuReq, corev1.ResourceMemory: memReq},
		Limits:   corev1.ResourceList{corev1.ResourceCPU: cpuLim, corev1.ResourceMemory: memLim},
	}, nil
}

// probe returns nil when health checks are off or the path is empty, so the
// two probes can be disabled independently.
func (b *builder) probe(path string, initialDelay int32) *corev1.Probe {
	if !b.req.HealthChecksEnabled() || path == "" {
		return nil
	}
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{
				Path:   path,
				Port:   intstr.FromInt32(b.req.HealthCheckPort),
				Scheme: corev1.URISchemeHTTP,
			},
		},
		InitialDelaySeconds: initialDelay,
		PeriodSeconds:       b.req.HealthCheckPeriod,
		TimeoutSeconds:      b.req.HealthCheckTimeout,
		FailureThreshold:    b.req.HealthCheckFailureThreshold,
	}
}

func (b *builder) service() *corev1.Service {
	return &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: b.meta(serviceName(b.req)),
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: selectorLabels(b.req),
			Ports: []corev1.ServicePort{{
				Name:       containerPortName,
				Port:       b.req.ServicePort,
				TargetPort: intstr.FromInt32(b.req.ContainerPort),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
}

func (b *builder) ingress() *networkingv1.Ingress {
	meta := b.meta(ingressName(b.req))
	meta.Annotations[AnnotationRewriteTarget] = "/$1"
	meta.Annotations[AnnotationUseRegex] = "true"
	if b.req.EnableHTTPS && b.opts.ClusterIssuer != "" {
		meta.Annotations[AnnotationClusterIssuer] = b.opts.ClusterIssuer
	}

	host := b.req.CustomDomain
	if host == "" {
		host = b.opts.DefaultHost
	}

	ing := &networkingv1.Ingress{
		TypeMeta:   metav1.TypeMeta{APIVersion: "networking.k8s.io/v1", Kind: "Ingress"},
		ObjectMeta: meta,
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{
				Host: host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     ingressPath(publicPath(b.req, rawSegment)),
							PathType: ptr.To(networkingv1.PathTypeImplementationSpecific),
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: serviceName(b.req),
									Port: networkingv1.ServiceBackendPort{Number: b.req.ServicePort},
								},
							},
						}},
					},
				},
			}},
		},
	}
	if b.opts.IngressClass != "" {
		ing.Spec.IngressClassName = ptr.To(b.opts.IngressClass)
	}
	if b.req.EnableHTTPS {
		ing.Spec.TLS = []networkingv1.IngressTLS{{
			Hosts:      []string{host},
			SecretName: tlsSecretName(b.req),
		}}
	}
	return ing
}

// ingressPath turns the public path into the nginx capture pattern that the
// rewrite-target annotation strips.
func ingressPath(public string) string {
	if public == "/" {
		return "/(.*)"
	}
	return regexp.QuoteMeta(public) + "/(.*)"
}

func (b *builder) configMap() *corev1.ConfigMap {
	data := make(map[string]string, len(b.req.EnvVars)+2)
	if b.types[TypeService] {
		data["INTERNAL_SERVICE_URL"] = InternalURL(b.req)
	}
	data["SERVICE_NAMESPACE"] = b.namespace
	for k, v := range b.req.EnvVars {
		data[k] = v
	}
	return &corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: b.meta(configMapName(b.req)),
		Data:       data,
	}
}

func (b *builder) secret() *corev1.Secret {
	data := make(map[string]string, len(b.req.Secrets))
	for k, v := range b.req.Secrets {
		data[k] = v
	}
	return &corev1.Secret{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: b.meta(secretName(b.req)),
		Type:       corev1.SecretTypeOpaque,
		StringData: data,
	}
}

func (b *builder) pvc() (*corev1.PersistentVolumeClaim, error) {
	size, err := resource.ParseQuantity(b.req.StorageSize)
	if err != nil {
		return nil, fmt.Errorf("storage_size %q: %w", b.req.StorageSize, err)
	}
	claim := &corev1.PersistentVolumeClaim{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "PersistentVolumeClaim"},
		ObjectMeta: b.meta(pvcName(b.req)),
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: size},
			},
		},
	}
	if b.opts.StorageClass != "" {
		claim.Spec.StorageClassName = ptr.To(b.opts.StorageClass)
	}
	return claim, nil
}

func (b *builder) autoscaler() *autoscalingv2.HorizontalPodAutoscaler {
	return &autoscalingv2.HorizontalPodAutoscaler{
		TypeMeta:   metav1.TypeMeta{APIVersion: "autoscaling/v2", Kind: "HorizontalPodAutoscaler"},
		ObjectMeta: b.meta(autoscalerName(b.req)),
		Spec: autoscalingv2.HorizontalPodAutoscalerSpec{
			ScaleTargetRef: autoscalingv2.CrossVersionObjectReference{
				APIVersion: "apps/v1",
				Kind:       "Deployment",
				Name:       b.app,
			},
			MinReplicas: ptr.To(b.req.MinReplicas),
			MaxReplicas: b.req.MaxReplicas,
			Metrics: []autoscalingv2.MetricSpec{{
				Type: autoscalingv2.ResourceMetricSourceType,
				Resource: &autoscalingv2.ResourceMetricSource{
					Name: corev1.ResourceCPU,
					Target: autoscalingv2.MetricTarget{
						Type:               autoscalingv2.UtilizationMetricType,
						AverageUtilization: ptr.To(b.req.TargetCPUPercent),
					},
				},
			}},
		},
	}
}
