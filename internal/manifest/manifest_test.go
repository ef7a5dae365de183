package manifest

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/yaml"

	"deploy-orchestrator-go/internal/models"
)

var testOptions = Options{
	DefaultHost:   "apps.example.com",
	IngressClass:  "nginx",
	StorageClass:  "local-path",
	ClusterIssuer: "letsencrypt-prod",
}

func baseRequest() models.DeploymentRequest {
	return models.DeploymentRequest{
		ProjectID:   "7",
		ProjectName: "Shop",
		Owner:       "alice",
		ServiceName: "Frontend",
		ImageName:   "ghcr.io/alice/shop-frontend:1.0.0",
	}.WithDefaults(models.Defaults{
		Replicas:      2,
		CPURequest:    "100m",
		CPULimit:      "500m",
		MemoryRequest: "128Mi",
		MemoryLimit:   "512Mi",
	})
}

func decode[T any](t *testing.T, set *Set, typ Type) *T {
	t.Helper()
	data, ok := set.Get(typ)
	require.True(t, ok, "missing %s", typ)
	var obj T
	require.NoError(t, yaml.UnmarshalStrict(data, &obj))
	return &obj
}

func TestInclusionTable(t *testing.T) {
	gen := NewGenerator(testOptions)
	exposures := []models.ExposureType{models.ExposureNone, models.ExposureInternal, models.ExposureExternal}

	for _, exposure := range exposures {
		for mask := 0; mask < 16; mask++ {
			env, secret, storage, autoscale := mask&1 != 0, mask&2 != 0, mask&4 != 0, mask&8 != 0
			name := fmt.Sprintf("%s/env=%v,secret=%v,storage=%v,hpa=%v", exposure, env, secret, storage, autoscale)

			t.Run(name, func(t *testing.T) {
				req := baseRequest()
				req.ExposureType = exposure
				if env {
					req.EnvVars = map[string]string{"NODE_ENV": "production"}
				}
				if secret {
					req.Secrets = map[string]string{"API_KEY": "s3cr3t"}
				}
				if storage {
					req.StorageSize = "1Gi"
					req.StoragePath = "/data"
				}
				if autoscale {
					req.EnableAutoscaling = true
					req.MinReplicas, req.MaxReplicas, req.TargetCPUPercent = 1, 3, 70
				}

				set, err := gen.Generate(&req, "dep-1")
				require.NoError(t, err)

				assert.True(t, set.Has(TypeNamespace))
				assert.True(t, set.Has(TypeWorkload))
				assert.Equal(t, exposure != models.ExposureNone, set.Has(TypeService))
				assert.Equal(t, exposure == models.ExposureExternal, set.Has(TypeIngress))
				assert.Equal(t, env, set.Has(TypeConfigMap))
				assert.Equal(t, secret, set.Has(TypeSecret))
				assert.Equal(t, storage, set.Has(TypePVC))
				assert.Equal(t, autoscale, set.Has(TypeAutoscaler))
				assert.Equal(t, Types(&req), set.Types())
			})
		}
	}
}

func TestExternalCustomDomainWithTLS(t *testing.T) {
	req := baseRequest()
	req.CustomDomain = "shop.example.org"
	req.CustomPath = "/"
	req.EnableHTTPS = true

	gen := NewGenerator(testOptions)
	set, err := gen.Generate(&req, "dep-a")
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.org/", gen.AccessURL(&req))

	ing := decode[networkingv1.Ingress](t, set, TypeIngress)
	assert.Equal(t, "frontend-ingress", ing.Name)
	assert.Equal(t, "alice-shop", ing.Namespace)
	require.Len(t, ing.Spec.Rules, 1)
	assert.Equal(t, "shop.example.org", ing.Spec.Rules[0].Host)
	require.Len(t, ing.Spec.Rules[0].HTTP.Paths, 1)
	path := ing.Spec.Rules[0].HTTP.Paths[0]
	assert.Equal(t, "/(.*)", path.Path)
	assert.Equal(t, "frontend-service", path.Backend.Service.Name)
	assert.Equal(t, int32(8000), path.Backend.Service.Port.Number)
	require.Len(t, ing.Spec.TLS, 1)
	assert.Equal(t, []string{"shop.example.org"}, ing.Spec.TLS[0].Hosts)
	assert.Equal(t, "frontend-tls", ing.Spec.TLS[0].SecretName)
	assert.Equal(t, "letsencrypt-prod", ing.Annotations[AnnotationClusterIssuer])
	assert.Equal(t, "/$1", ing.Annotations[AnnotationRewriteTarget])
	assert.Equal(t, "true", ing.Annotations[AnnotationUseRegex])
	require.NotNil(t, ing.Spec.IngressClassName)
	assert.Equal(t, "nginx", *ing.Spec.IngressClassName)

	deploy := decode[appsv1.Deployment](t, set, TypeWorkload)
	assert.Equal(t, "https://shop.example.org/", deploy.Annotations[AnnotationAccessURL])
}

func TestDefaultPublicPath(t *testing.T) {
	req := baseRequest()
	gen := NewGenerator(testOptions)

	assert.Equal(t, "http://apps.example.com/alice/Shop/Frontend", gen.AccessURL(&req))

	set, err := gen.Generate(&req, "dep-1")
	require.NoError(t, err)
	ing := decode[networkingv1.Ingress](t, set, TypeIngress)
	assert.Equal(t, "/alice/Shop/Frontend/(.*)", ing.Spec.Rules[0].HTTP.Paths[0].Path)
	assert.Empty(t, ing.Spec.TLS)
	assert.NotContains(t, ing.Annotations, AnnotationClusterIssuer)

	req.CustomPath = "/api/"
	assert.Equal(t, "http://apps.example.com/api", gen.AccessURL(&req))
}

func TestNoExposure(t *testing.T) {
	req := baseRequest()
	req.ExposureType = models.ExposureNone

	gen := NewGenerator(testOptions)
	set, err := gen.Generate(&req, "dep-b")
	require.NoError(t, err)

	assert.Equal(t, []Type{TypeNamespace, TypeWorkload}, set.Types())
	assert.Empty(t, gen.AccessURL(&req))

	deploy := decode[appsv1.Deployment](t, set, TypeWorkload)
	assert.Equal(t, InternalOnly, deploy.Annotations[AnnotationAccessURL])
	assert.NotContains(t, deploy.Annotations, AnnotationInternalURL)
}

func TestAutoscaler(t *testing.T) {
	req := baseRequest()
	req.EnableAutoscaling = true
	req.MinReplicas = 2
	req.MaxReplicas = 8
	req.TargetCPUPercent = 75

	set, err := NewGenerator(testOptions).Generate(&req, "dep-c")
	require.NoError(t, err)

	hpa := decode[autoscalingv2.HorizontalPodAutoscaler](t, set, TypeAutoscaler)
	assert.Equal(t, "frontend-hpa", hpa.Name)
	require.NotNil(t, hpa.Spec.MinReplicas)
	assert.Equal(t, int32(2), *hpa.Spec.MinReplicas)
	assert.Equal(t, int32(8), hpa.Spec.MaxReplicas)
	assert.Equal(t, "frontend", hpa.Spec.ScaleTargetRef.Name)
	assert.Equal(t, "Deployment", hpa.Spec.ScaleTargetRef.Kind)
	require.Len(t, hpa.Spec.Metrics, 1)
	metric := hpa.Spec.Metrics[0]
	assert.Equal(t, corev1.ResourceCPU, metric.Resource.Name)
	require.NotNil(t, metric.Resource.Target.AverageUtilization)
	assert.Equal(t, int32(75), *metric.Resource.Target.AverageUtilization)
}

func TestWorkload(t *testing.T) {
	req := baseRequest()
	req.EnvVars = map[string]string{"NODE_ENV": "production"}
	req.Secrets = map[string]string{"API_KEY": "s3cr3t"}
	req.StorageSize = "5Gi"
	req.StoragePath = "/data"

	opts := testOptions
	opts.ImagePullSecret = "ghcr-secret"
	set, err := NewGenerator(opts).Generate(&req, "dep-w")
	require.NoError(t, err)

	deploy := decode[appsv1.Deployment](t, set, TypeWorkload)
	assert.Equal(t, "frontend", deploy.Name)
	assert.Equal(t, "alice-shop", deploy.Namespace)
	require.NotNil(t, deploy.Spec.Replicas)
	assert.Equal(t, int32(2), *deploy.Spec.Replicas)
	assert.Equal(t, map[string]string{LabelApp: "frontend"}, deploy.Spec.Selector.MatchLabels)
	assert.Equal(t, "dep-w", deploy.Spec.Template.Labels[LabelDeploymentID])
	assert.Equal(t, []corev1.LocalObjectReference{{Name: "ghcr-secret"}}, deploy.Spec.Template.Spec.ImagePullSecrets)

	require.Len(t, deploy.Spec.Template.Spec.Containers, 1)
	c := deploy.Spec.Template.Spec.Containers[0]
	assert.Equal(t, req.ImageName, c.Image)
	assert.Equal(t, int32(3000), c.Ports[0].ContainerPort)
	assert.Equal(t, "500m", c.Resources.Limits.Cpu().String())
	assert.Equal(t, "128Mi", c.Resources.Requests.Memory().String())
	require.Len(t, c.EnvFrom, 2)
	assert.Equal(t, "frontend-config", c.EnvFrom[0].ConfigMapRef.Name)
	assert.Equal(t, "frontend-secret", c.EnvFrom[1].SecretRef.Name)
	require.Len(t, c.VolumeMounts, 1)
	assert.Equal(t, "/data", c.VolumeMounts[0].MountPath)
	assert.Equal(t, "frontend-pvc", deploy.Spec.Template.Spec.Volumes[0].PersistentVolumeClaim.ClaimName)

	cm := decode[corev1.ConfigMap](t, set, TypeConfigMap)
	assert.Equal(t, "production", cm.Data["NODE_ENV"])
	assert.Equal(t, "http://frontend-service:8000", cm.Data["INTERNAL_SERVICE_URL"])
	assert.Equal(t, "alice-shop", cm.Data["SERVICE_NAMESPACE"])

	secret := decode[corev1.Secret](t, set, TypeSecret)
	assert.Equal(t, corev1.SecretTypeOpaque, secret.Type)
	assert.Equal(t, "s3cr3t", secret.StringData["API_KEY"])

	pvc := decode[corev1.PersistentVolumeClaim](t, set, TypePVC)
	assert.Equal(t, "5Gi", pvc.Spec.Resources.Requests.Storage().String())
	assert.Equal(t, []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce}, pvc.Spec.AccessModes)
	require.NotNil(t, pvc.Spec.StorageClassName)
	assert.Equal(t, "local-path", *pvc.Spec.StorageClassName)

	svc := decode[corev1.Service](t, set, TypeService)
	assert.Equal(t, corev1.ServiceTypeClusterIP, svc.Spec.Type)
	assert.Equal(t, intstr.FromInt32(3000), svc.Spec.Ports[0].TargetPort)
}

func TestProbes(t *testing.T) {
	gen := NewGenerator(testOptions)

	t.Run("both probes", func(t *testing.T) {
		req := baseRequest()
		set, err := gen.Generate(&req, "dep-p")
		require.NoError(t, err)

		c := decode[appsv1.Deployment](t, set, TypeWorkload).Spec.Template.Spec.Containers[0]
		want := &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{Path: "/health", Port: intstr.FromInt32(3000), Scheme: corev1.URISchemeHTTP},
			},
			InitialDelaySeconds: 30,
			PeriodSeconds:       10,
			TimeoutSeconds:      5,
			FailureThreshold:    3,
		}
		if diff := cmp.Diff(want, c.LivenessProbe); diff != "" {
			t.Errorf("liveness probe mismatch (-want +got):\n%s", diff)
		}
		require.NotNil(t, c.ReadinessProbe)
		assert.Equal(t, "/ready", c.ReadinessProbe.HTTPGet.Path)
		assert.Equal(t, int32(5), c.ReadinessProbe.InitialDelaySeconds)
	})

	t.Run("readiness disabled by empty path", func(t *testing.T) {
		req := baseRequest()
		req.ReadinessCheckPath = models.ProbePathOf("")
		set, err := gen.Generate(&req, "dep-p")
		require.NoError(t, err)

		c := decode[appsv1.Deployment](t, set, TypeWorkload).Spec.Template.Spec.Containers[0]
		assert.NotNil(t, c.LivenessProbe)
		assert.Nil(t, c.ReadinessProbe)
	})

	t.Run("health checks off", func(t *testing.T) {
		req := baseRequest()
		off := false
		req.HealthCheckEnabled = &off
		set, err := gen.Generate(&req, "dep-p")
		require.NoError(t, err)

		c := decode[appsv1.Deployment](t, set, TypeWorkload).Spec.Template.Spec.Containers[0]
		assert.Nil(t, c.LivenessProbe)
		assert.Nil(t, c.ReadinessProbe)
	})
}

func TestGenerateIsDeterministic(t *testing.T) {
	req := baseRequest()
	req.EnvVars = map[string]string{"B": "2", "A": "1", "C": "3", "D": "4"}
	req.Secrets = map[string]string{"Z": "z", "Y": "y"}
	req.EnableAutoscaling = true
	req.MinReplicas, req.MaxReplicas, req.TargetCPUPercent = 1, 4, 60

	gen := NewGenerator(testOptions)
	first, err := gen.Generate(&req, "dep-d")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := gen.Generate(&req, "dep-d")
		require.NoError(t, err)
		require.Equal(t, first.Types(), again.Types())
		for _, doc := range first.Documents() {
			data, _ := again.Get(doc.Type)
			assert.True(t, bytes.Equal(doc.YAML, data), "%s differs between runs", doc.Type)
		}
	}
}

func TestAccessURLRoutesThroughIngress(t *testing.T) {
	req := baseRequest()
	req.Owner = "User1!"
	req.ProjectName = "Project A"
	req.ServiceName = "svc"
	gen := NewGenerator(testOptions)

	accessURL := gen.AccessURL(&req)
	assert.Equal(t, "http://apps.example.com/User1%21/Project%20A/svc", accessURL)

	set, err := gen.Generate(&req, "dep-r")
	require.NoError(t, err)
	ing := decode[networkingv1.Ingress](t, set, TypeIngress)
	ingressPath := ing.Spec.Rules[0].HTTP.Paths[0].Path
	assert.Equal(t, "/User1!/Project A/svc/(.*)", ingressPath)

	u, err := url.Parse(accessURL + "/index.html")
	require.NoError(t, err)
	m := regexp.MustCompile("^" + ingressPath + "$").FindStringSubmatch(u.Path)
	require.NotNil(t, m, "%q does not match %q", u.Path, ingressPath)
	assert.Equal(t, "index.html", m[1])
}

func TestFreeTextCannotInjectStructure(t *testing.T) {
	req := baseRequest()
	req.DisplayName = "Shop\"\n---\nkind: ClusterRole"
	req.Description = "line one\nmetadata:\n  name: evil # {{ .Values }}"
	req.EnvVars = map[string]string{"MESSAGE": "value: injected\n- item"}

	set, err := NewGenerator(testOptions).Generate(&req, "dep-x")
	require.NoError(t, err)

	for _, doc := range set.Documents() {
		assert.False(t, bytes.Contains(doc.YAML, []byte("\n---\n")), "%s contains a document separator", doc.Type)
	}

	deploy := decode[appsv1.Deployment](t, set, TypeWorkload)
	assert.Equal(t, "frontend", deploy.Name)
	assert.Equal(t, "7", deploy.Annotations[AnnotationProjectID])
	assert.Equal(t, req.DisplayName, deploy.Annotations[AnnotationDisplayName])
	assert.Equal(t, req.Description, deploy.Annotations[AnnotationDescription])

	cm := decode[corev1.ConfigMap](t, set, TypeConfigMap)
	assert.Equal(t, "value: injected\n- item", cm.Data["MESSAGE"])
}

func TestLabelValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "alice", want: "alice"},
		{in: "User One!", want: "User-One"},
		{in: "-edge-", want: "edge"},
		{in: "ça va", want: "a-va"},
		{in: "", want: ""},
		{in: strings.Repeat("a", 70), want: strings.Repeat("a", 63)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := LabelValue(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, validation.IsValidLabelValue(got))
		})
	}
}

func TestApplyOrderCoversEveryType(t *testing.T) {
	assert.ElementsMatch(t, generationOrder, ApplyOrder)
	assert.Equal(t, TypeNamespace, ApplyOrder[0])
	assert.True(t, TypeNamespace.Critical())
	assert.True(t, TypeWorkload.Critical())
	assert.False(t, TypeIngress.Critical())
}
