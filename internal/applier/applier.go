// Package applier pushes a rendered manifest set into the cluster in
// dependency order.
package applier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"sigs.k8s.io/yaml"

	"deploy-orchestrator-go/internal/api/middleware"
	"deploy-orchestrator-go/internal/domain"
	"deploy-orchestrator-go/internal/k8s"
	"deploy-orchestrator-go/internal/manifest"
)

// Result is the outcome of applying one document.
type Result struct {
	Type    manifest.Type
	Applied bool
	Err     error
}

// Outcome collects the per-document results of one Apply call, in the order
// they were attempted.
type Outcome struct {
	Results []Result
}

// Attempted returns the types that were attempted, in order.
func (o *Outcome) Attempted() []manifest.Type {
	types := make([]manifest.Type, len(o.Results))
	for i, r := range o.Results {
		types[i] = r.Type
	}
	return types
}

// Applied returns the types that were applied successfully, in order.
func (o *Outcome) Applied() []manifest.Type {
	var types []manifest.Type
	for _, r := range o.Results {
		if r.Applied {
			types = append(types, r.Type)
		}
	}
	return types
}

// Err joins the non-critical failures, or returns nil if there were none.
func (o *Outcome) Err() error {
	var errs []error
	for _, r := range o.Results {
		if r.Err != nil && !r.Type.Critical() {
			errs = append(errs, fmt.Errorf("%w: %s: %w", domain.ErrNonCriticalApply, r.Type, r.Err))
		}
	}
	return errors.Join(errs...)
}

// Applier applies manifest sets through a ControlPlane.
type Applier struct {
	cp     k8s.ControlPlane
	logger *zap.Logger
}

// NewApplier creates an applier.
func NewApplier(cp k8s.ControlPlane, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{cp: cp, logger: logger}
}

// Apply creates or replaces every document of set inside namespace, in
// manifest.ApplyOrder. A failure on a critical type stops the run and is
// returned wrapped in domain.ErrCriticalApply; other failures are recorded in
// the outcome and the run continues.
func (a *Applier) Apply(ctx context.Context, set *manifest.Set, namespace string) (*Outcome, error) {
	outcome := &Outcome{}

	for _, t := range manifest.ApplyOrder {
		data, ok := set.Get(t)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		err := a.applyOne(ctx, t, data, namespace)
		outcome.Results = append(outcome.Results, Result{Type: t, Applied: err == nil, Err: err})

		if err == nil {
			middleware.ApplyResultsTotal.WithLabelValues(string(t), "applied").Inc()
			a.logger.Debug("manifest applied",
				zap.String("resource", string(t)),
				zap.String("namespace", namespace),
			)
			continue
		}

		middleware.ApplyResultsTotal.WithLabelValues(string(t), "failed").Inc()
		if t.Critical() {
			a.logger.Error("critical manifest failed",
				zap.String("resource", string(t)),
				zap.String("namespace", namespace),
				zap.Error(err),
			)
			return outcome, fmt.Errorf("%w: %s: %w", domain.ErrCriticalApply, t, err)
		}
		a.logger.Warn("manifest failed, continuing",
			zap.String("resource", string(t)),
			zap.String("namespace", namespace),
			zap.Error(err),
		)
	}

	return outcome, nil
}

func (a *Applier) applyOne(ctx context.Context, t manifest.Type, data []byte, namespace string) error {
	switch t {
	case manifest.TypeNamespace:
		var ns corev1.Namespace
		if err := decode(data, &ns); err != nil {
			return err
		}
		if ns.Name != namespace {
			return fmt.Errorf("namespace document names %q, expected %q", ns.Name, namespace)
		}
		if err := a.checkOwnership(ctx, &ns); err != nil {
			return err
		}
		return a.cp.CreateOrReplaceNamespace(ctx, &ns)

	case manifest.TypeConfigMap:
		var cm corev1.ConfigMap
		if err := decode(data, &cm); err != nil {
			return err
		}
		cm.Namespace = namespace
		return a.cp.CreateOrReplaceConfigMap(ctx, &cm)

	case manifest.TypeSecret:
		var secret corev1.Secret
		if err := decode(data, &secret); err != nil {
			return err
		}
		secret.Namespace = namespace
		return a.cp.CreateOrReplaceSecret(ctx, &secret)

	case manifest.TypePVC:
		var pvc corev1.PersistentVolumeClaim
		if err := decode(data, &pvc); err != nil {
			return err
		}
		pvc.Namespace = namespace
		return a.cp.CreateOrReplacePVC(ctx, &pvc)

	case manifest.TypeWorkload:
		var deploy appsv1.Deployment
		if err := decode(data, &deploy); err != nil {
			return err
		}
		deploy.Namespace = namespace
		return a.cp.CreateOrReplaceWorkload(ctx, &deploy)

	case manifest.TypeService:
		var svc corev1.Service
		if err := decode(data, &svc); err != nil {
			return err
		}
		svc.Namespace = namespace
		return a.cp.CreateOrReplaceService(ctx, &svc)

	case manifest.TypeIngress:
		var ing networkingv1.Ingress
		if err := decode(data, &ing); err != nil {
			return err
		}
		ing.Namespace = namespace
		return a.cp.CreateOrReplaceIngress(ctx, &ing)

	case manifest.TypeAutoscaler:
		var hpa autoscalingv2.HorizontalPodAutoscaler
		if err := decode(data, &hpa); err != nil {
			return err
		}
		hpa.Namespace = namespace
		return a.cp.CreateOrReplaceAutoscaler(ctx, &hpa)
	}

	return fmt.Errorf("unknown manifest type %q", t)
}

// checkOwnership rejects a namespace that already exists but belongs to a
// different owner/project pair, or was not created by this service at all.
// Distinct pairs can sanitize to the same namespace name.
func (a *Applier) checkOwnership(ctx context.Context, desired *corev1.Namespace) error {
	existing, err := a.cp.GetNamespace(ctx, desired.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	if existing.Labels[manifest.LabelManagedBy] != manifest.ManagedBy {
		return fmt.Errorf("%w: %s is not managed by %s", domain.ErrNamespaceCollision, desired.Name, manifest.ManagedBy)
	}
	wantOwner := desired.Annotations[manifest.AnnotationOwner]
	wantProject := desired.Annotations[manifest.AnnotationProject]
	gotOwner := existing.Annotations[manifest.AnnotationOwner]
	gotProject := existing.Annotations[manifest.AnnotationProject]
	if gotOwner != wantOwner || gotProject != wantProject {
		return fmt.Errorf("%w: %s belongs to %s/%s", domain.ErrNamespaceCollision, desired.Name, gotOwner, gotProject)
	}
	return nil
}

func decode(data []byte, obj any) error {
	if err := yaml.UnmarshalStrict(data, obj); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	return nil
}
