package k8s

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"
)

// upsertOps binds the typed client calls for one resource kind.
type upsertOps[T metav1.Object] struct {
	create func(context.Context, T, metav1.CreateOptions) (T, error)
	get    func(context.Context, string, metav1.GetOptions) (T, error)
	update func(context.Context, T, metav1.UpdateOptions) (T, error)
	// carry copies server-owned or immutable fields from existing onto desired.
	carry func(existing, desired T)
}

// upsert creates obj, or replaces the existing object of the same name.
func upsert[T metav1.Object](ctx context.Context, kind string, obj T, ops upsertOps[T], logger *zap.Logger) error {
	_, err := ops.create(ctx, obj, metav1.CreateOptions{})
	if err == nil {
		logger.Debug("resource created",
			zap.String("kind", kind),
			zap.String("name", obj.GetName()),
			zap.String("namespace", obj.GetNamespace()),
		)
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("create %s %s: %w", kind, obj.GetName(), err)
	}

	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		existing, err := ops.get(ctx, obj.GetName(), metav1.GetOptions{})
		if err != nil {
			return err
		}
		obj.SetResourceVersion(existing.GetResourceVersion())
		if ops.carry != nil {
			ops.carry(existing, obj)
		}
		_, err = ops.update(ctx, obj, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return fmt.Errorf("replace %s %s: %w", kind, obj.GetName(), err)
	}

	logger.Debug("resource replaced",
		zap.String("kind", kind),
		zap.String("name", obj.GetName()),
		zap.String("namespace", obj.GetNamespace()),
	)
	return nil
}

// NamespaceExists reports whether the namespace is present.
func (c *Client) NamespaceExists(ctx context.Context, name string) (bool, error) {
	_, err := c.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get namespace %s: %w", name, err)
	}
	return true, nil
}

// GetNamespace returns the namespace, or nil when it does not exist.
func (c *Client) GetNamespace(ctx context.Context, name string) (*corev1.Namespace, error) {
	ns, err := c.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get namespace %s: %w", name, err)
	}
	return ns, nil
}

func (c *Client) CreateOrReplaceNamespace(ctx context.Context, ns *corev1.Namespace) error {
	api := c.clientset.CoreV1().Namespaces()
	return upsert(ctx, "namespace", ns, upsertOps[*corev1.Namespace]{
		create: api.Create,
		get:    api.Get,
		update: api.Update,
		carry: func(existing, desired *corev1.Namespace) {
			desired.Spec = existing.Spec
		},
	}, c.logger)
}

// DeleteNamespace removes the namespace and everything in it. A missing
// namespace is not an error.
func (c *Client) DeleteNamespace(ctx context.Context, name string) error {
	policy := metav1.DeletePropagationBackground
	err := c.clientset.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete namespace %s: %w", name, err)
	}
	return nil
}

func (c *Client) CreateOrReplaceConfigMap(ctx context.Context, cm *corev1.ConfigMap) error {
	api := c.clientset.CoreV1().ConfigMaps(cm.Namespace)
	return upsert(ctx, "configmap", cm, upsertOps[*corev1.ConfigMap]{
		create: api.Create,
		get:    api.Get,
		update: api.Update,
	}, c.logger)
}

func (c *Client) CreateOrReplaceSecret(ctx context.Context, secret *corev1.Secret) error {
	api := c.clientset.CoreV1().Secrets(secret.Namespace)
	return upsert(ctx, "secret", secret, upsertOps[*corev1.Secret]{
		create: api.Create,
		get:    api.Get,
		update: api.Update,
		carry: func(existing, desired *corev1.Secret) {
			// Secret type is immutable.
			desired.Type = existing.Type
		},
	}, c.logger)
}

func (c *Client) CreateOrReplacePVC(ctx context.Context, pvc *corev1.PersistentVolumeClaim) error {
	api := c.clientset.CoreV1().PersistentVolumeClaims(pvc.Namespace)
	return upsert(ctx, "pvc", pvc, upsertOps[*corev1.PersistentVolumeClaim]{
		create: api.Create,
		get:    api.Get,
		update: api.Update,
		carry: func(existing, desired *corev1.PersistentVolumeClaim) {
			// A bound claim's spec is immutable apart from growing the request.
			want := desired.Spec.Resources.Requests[corev1.ResourceStorage]
			spec := *existing.Spec.DeepCopy()
			have := spec.Resources.Requests[corev1.ResourceStorage]
			if want.Cmp(have) > 0 {
				if spec.Resources.Requests == nil {
					spec.Resources.Requests = corev1.ResourceList{}
				}
				spec.Resources.Requests[corev1.ResourceStorage] = want
			}
			desired.Spec = spec
		},
	}, c.logger)
}

func (c *Client) CreateOrReplaceWorkload(ctx context.Context, deploy *appsv1.Deployment) error {
	api := c.clientset.AppsV1().Deployments(deploy.Namespace)
	return upsert(ctx, "deployment", deploy, upsertOps[*appsv1.Deployment]{
		create: api.Create,
		get:    api.Get,
		update: api.Update,
		carry: func(existing, desired *appsv1.Deployment) {
			if existing.Spec.Selector != nil {
				desired.Spec.Selector = existing.Spec.Selector
			}
		},
	}, c.logger)
}

func (c *Client) CreateOrReplaceService(ctx context.Context, svc *corev1.Service) error {
	api := c.clientset.CoreV1().Services(svc.Namespace)
	return upsert(ctx, "service", svc, upsertOps[*corev1.Service]{
		create: api.Create,
		get:    api.Get,
		update: api.Update,
		carry: func(existing, desired *corev1.Service) {
			desired.Spec.ClusterIP = existing.Spec.ClusterIP
			desired.Spec.ClusterIPs = existing.Spec.ClusterIPs
			desired.Spec.IPFamilies = existing.Spec.IPFamilies
			desired.Spec.IPFamilyPolicy = existing.Spec.IPFamilyPolicy
		},
	}, c.logger)
}

func (c *Client) CreateOrReplaceIngress(ctx context.Context, ing *networkingv1.Ingress) error {
	api := c.clientset.NetworkingV1().Ingresses(ing.Namespace)
	return upsert(ctx, "ingress", ing, upsertOps[*networkingv1.Ingress]{
		create: api.Create,
		get:    api.Get,
		update: api.Update,
	}, c.logger)
}

func (c *Client) CreateOrReplaceAutoscaler(ctx context.Context, hpa *autoscalingv2.HorizontalPodAutoscaler) error {
	api := c.clientset.AutoscalingV2().HorizontalPodAutoscalers(hpa.Namespace)
	return upsert(ctx, "autoscaler", hpa, upsertOps[*autoscalingv2.HorizontalPodAutoscaler]{
		create: api.Create,
		get:    api.Get,
		update: api.Update,
	}, c.logger)
}

// GetWorkloadStatus returns desired and ready replica counts of a Deployment.
func (c *Client) GetWorkloadStatus(ctx context.Context, name, namespace string) (*WorkloadStatus, error) {
	deploy, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get deployment %s/%s: %w", namespace, name, err)
	}

	total := int32(1)
	if deploy.Spec.Replicas != nil {
		total = *deploy.Spec.Replicas
	}

	status := &WorkloadStatus{
		Total:     total,
		Ready:     deploy.Status.ReadyReplicas,
		Available: deploy.Status.AvailableReplicas,
		Updated:   deploy.Status.UpdatedReplicas,
	}
	for _, cond := range deploy.Status.Conditions {
		status.Conditions = append(status.Conditions, Condition{
			Type:    string(cond.Type),
			Status:  string(cond.Status),
			Reason:  cond.Reason,
			Message: cond.Message,
		})
	}
	return status, nil
}
