package readiness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"deploy-orchestrator-go/internal/domain"
	"deploy-orchestrator-go/internal/k8s"
)

// scriptedPlane returns statuses from a script, repeating the last entry.
type scriptedPlane struct {
	k8s.ControlPlane
	script []scripted
	calls  int
}

type scripted struct {
	status *k8s.WorkloadStatus
	err    error
}

func (p *scriptedPlane) GetWorkloadStatus(_ context.Context, _, _ string) (*k8s.WorkloadStatus, error) {
	i := p.calls
	if i >= len(p.script) {
		i = len(p.script) - 1
	}
	p.calls++
	return p.script[i].status, p.script[i].err
}

func TestWaitReturnsOnceReady(t *testing.T) {
	plane := &scriptedPlane{script: []scripted{
		{err: errors.New("deployment not found")},
		{status: &k8s.WorkloadStatus{Total: 2, Ready: 0}},
		{status: &k8s.WorkloadStatus{Total: 2, Ready: 1}},
		{status: &k8s.WorkloadStatus{Total: 2, Ready: 2}},
	}}
	var observed []int32

	status, err := NewPoller(plane, 5*time.Second, time.Millisecond, nil).Wait(context.Background(), "web", "alice-shop",
		func(s *k8s.WorkloadStatus) { observed = append(observed, s.Ready) })
	require.NoError(t, err)
	assert.True(t, status.IsReady())
	assert.Equal(t, 4, plane.calls)
	assert.Equal(t, []int32{0, 1, 2}, observed, "errors are not observed")
}

func TestWaitTimesOut(t *testing.T) {
	plane := &scriptedPlane{script: []scripted{{status: &k8s.WorkloadStatus{Total: 3, Ready: 1}}}}

	status, err := NewPoller(plane, 50*time.Millisecond, 5*time.Millisecond, nil).Wait(context.Background(), "web", "alice-shop", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReadinessTimeout)
	assert.Contains(t, err.Error(), "1/3 replicas ready")
	require.NotNil(t, status)
	assert.Equal(t, int32(1), status.Ready)
}

func TestWaitTimesOutWithOnlyErrors(t *testing.T) {
	plane := &scriptedPlane{script: []scripted{{err: errors.New("connection refused")}}}

	status, err := NewPoller(plane, 30*time.Millisecond, 5*time.Millisecond, nil).Wait(context.Background(), "web", "alice-shop", nil)
	assert.ErrorIs(t, err, domain.ErrReadinessTimeout)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, status)
}

func TestWaitHonoursCancellation(t *testing.T) {
	plane := &scriptedPlane{script: []scripted{{status: &k8s.WorkloadStatus{Total: 1, Ready: 0}}}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := NewPoller(plane, time.Minute, 5*time.Millisecond, nil).Wait(ctx, "web", "alice-shop", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrReadinessTimeout)
}

func TestWaitAgainstClientset(t *testing.T) {
	replicas := int32(2)
	cs := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "alice-shop"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: 2, AvailableReplicas: 2},
	})

	status, err := NewPoller(k8s.NewFromClientset(cs, nil), time.Second, 10*time.Millisecond, nil).
		Wait(context.Background(), "web", "alice-shop", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), status.Ready)
}
