package k8s

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
)

func newTestClient(objects ...runtime.Object) (*Client, *fake.Clientset) {
	cs := fake.NewSimpleClientset(objects...)
	return NewFromClientset(cs, nil), cs
}

func TestNamespaceUpsert(t *testing.T) {
	ctx := context.Background()
	c, cs := newTestClient()

	exists, err := c.NamespaceExists(ctx, "alice-shop")
	require.NoError(t, err)
	assert.False(t, exists)

	ns, err := c.GetNamespace(ctx, "alice-shop")
	require.NoError(t, err)
	assert.Nil(t, ns)

	require.NoError(t, c.CreateOrReplaceNamespace(ctx, &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: "alice-shop", Labels: map[string]string{"v": "1"}},
	}))
	require.NoError(t, c.CreateOrReplaceNamespace(ctx, &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: "alice-shop", Labels: map[string]string{"v": "2"}},
	}))

	got, err := cs.CoreV1().Namespaces().Get(ctx, "alice-shop", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2", got.Labels["v"])

	exists, err = c.NamespaceExists(ctx, "alice-shop")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestServiceReplaceKeepsClusterIP(t *testing.T) {
	ctx := context.Background()
	existing := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "web-service", Namespace: "alice-shop", ResourceVersion: "3"},
		Spec: corev1.ServiceSpec{
			ClusterIP:  "10.0.0.12",
			ClusterIPs: []string{"10.0.0.12"},
			Ports:      []corev1.ServicePort{{Port: 80}},
		},
	}
	c, cs := newTestClient(existing)

	desired := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "web-service", Namespace: "alice-shop"},
		Spec:       corev1.ServiceSpec{Ports: []corev1.ServicePort{{Port: 8000}}},
	}
	require.NoError(t, c.CreateOrReplaceService(ctx, desired))

	got, err := cs.CoreV1().Services("alice-shop").Get(ctx, "web-service", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.12", got.Spec.ClusterIP)
	assert.Equal(t, int32(8000), got.Spec.Ports[0].Port)
}

func TestPVCReplaceOnlyGrowsRequest(t *testing.T) {
	ctx := context.Background()
	class := "local-path"
	existing := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "web-pvc", Namespace: "alice-shop"},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes:      []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			StorageClassName: &class,
			VolumeName:       "pv-123",
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse("2Gi")},
			},
		},
	}
	c, cs := newTestClient(existing)

	claim := func(size string) *corev1.PersistentVolumeClaim {
		return &corev1.PersistentVolumeClaim{
			ObjectMeta: metav1.ObjectMeta{Name: "web-pvc", Namespace: "alice-shop"},
			Spec: corev1.PersistentVolumeClaimSpec{
				AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
				Resources: corev1.VolumeResourceRequirements{
					Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse(size)},
				},
			},
		}
	}

	require.NoError(t, c.CreateOrReplacePVC(ctx, claim("1Gi")))
	got, err := cs.CoreV1().PersistentVolumeClaims("alice-shop").Get(ctx, "web-pvc", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2Gi", got.Spec.Resources.Requests.Storage().String())
	assert.Equal(t, "pv-123", got.Spec.VolumeName)

	require.NoError(t, c.CreateOrReplacePVC(ctx, claim("5Gi")))
	got, err = cs.CoreV1().PersistentVolumeClaims("alice-shop").Get(ctx, "web-pvc", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "5Gi", got.Spec.Resources.Requests.Storage().String())
}

func TestGetWorkloadStatus(t *testing.T) {
	ctx := context.Background()
	replicas := int32(3)
	deploy := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "alice-shop"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		Status: appsv1.DeploymentStatus{
			ReadyReplicas:     2,
			AvailableReplicas: 2,
			Conditions: []appsv1.DeploymentCondition{{
				Type:   appsv1.DeploymentProgressing,
				Status: corev1.ConditionTrue,
				Reason: "ReplicaSetUpdated",
			}},
		},
	}
	c, _ := newTestClient(deploy)

	status, err := c.GetWorkloadStatus(ctx, "web", "alice-shop")
	require.NoError(t, err)
	assert.Equal(t, int32(3), status.Total)
	assert.Equal(t, int32(2), status.Ready)
	assert.False(t, status.IsReady())
	require.Len(t, status.Conditions, 1)
	assert.Equal(t, "Progressing", status.Conditions[0].Type)

	_, err = c.GetWorkloadStatus(ctx, "missing", "alice-shop")
	assert.Error(t, err)
}

func TestWorkloadStatusIsReady(t *testing.T) {
	assert.True(t, (&WorkloadStatus{Total: 2, Ready: 2}).IsReady())
	assert.False(t, (&WorkloadStatus{Total: 0, Ready: 0}).IsReady())
	assert.False(t, (&WorkloadStatus{Total: 2, Ready: 1}).IsReady())
	assert.False(t, (*WorkloadStatus)(nil).IsReady())
}

func TestDeleteNamespace(t *testing.T) {
	ctx := context.Background()
	c, cs := newTestClient(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "alice-shop"}})

	require.NoError(t, c.DeleteNamespace(ctx, "alice-shop"))
	_, err := cs.CoreV1().Namespaces().Get(ctx, "alice-shop", metav1.GetOptions{})
	assert.Error(t, err)

	assert.NoError(t, c.DeleteNamespace(ctx, "alice-shop"), "deleting a missing namespace is not an error")
}

func TestPing(t *testing.T) {
	c, _ := newTestClient()
	assert.NoError(t, c.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Ping(ctx), context.Canceled)
}
