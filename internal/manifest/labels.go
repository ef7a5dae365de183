package manifest

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"

	"deploy-orchestrator-go/internal/models"
)

// Label and annotation keys stamped on every generated object.
const (
	LabelApp          = "app"
	LabelName         = "app.kubernetes.io/name"
	LabelManagedBy    = "app.kubernetes.io/managed-by"
	LabelOwner        = "nokube.io/owner"
	LabelProject      = "nokube.io/project"
	LabelProjectID    = "nokube.io/project-id"
	LabelService      = "nokube.io/service"
	LabelDeploymentID = "nokube.io/deployment-id"

	AnnotationOwner        = "nokube.io/owner"
	AnnotationProject      = "nokube.io/project"
	AnnotationProjectID    = "nokube.io/project-id"
	AnnotationDisplayName  = "nokube.io/display-name"
	AnnotationDescription  = "nokube.io/description"
	AnnotationAccessURL    = "nokube.io/access-url"
	AnnotationInternalURL  = "nokube.io/internal-url"
	AnnotationDeploymentID = "nokube.io/deployment-id"

	AnnotationRewriteTarget = "nginx.ingress.kubernetes.io/rewrite-target"
	AnnotationUseRegex      = "nginx.ingress.kubernetes.io/use-regex"
	AnnotationClusterIssuer = "cert-manager.io/cluster-issuer"

	ManagedBy = "deploy-orchestrator"

	// InternalOnly is the access-url annotation of services with no public URL.
	InternalOnly = "internal-only"
)

func serviceName(req *models.DeploymentRequest) string    { return req.AppName() + "-service" }
func ingressName(req *models.DeploymentRequest) string    { return req.AppName() + "-ingress" }
func configMapName(req *models.DeploymentRequest) string  { return req.AppName() + "-config" }
func secretName(req *models.DeploymentRequest) string     { return req.AppName() + "-secret" }
func pvcName(req *models.DeploymentRequest) string        { return req.AppName() + "-pvc" }
func autoscalerName(req *models.DeploymentRequest) string { return req.AppName() + "-hpa" }
func tlsSecretName(req *models.DeploymentRequest) string  { return req.AppName() + "-tls" }

// selectorLabels is stable across redeployments of the same service, since a
// Deployment's selector cannot change once created.
func selectorLabels(req *models.DeploymentRequest) map[string]string {
	return map[string]string{LabelApp: LabelValue(req.AppName())}
}

func namespaceLabels(req *models.DeploymentRequest) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedBy,
		LabelOwner:     LabelValue(req.Owner),
		LabelProject:   LabelValue(req.ProjectName),
		LabelProjectID: LabelValue(req.ProjectID),
	}
}

func namespaceAnnotations(req *models.DeploymentRequest) map[string]string {
	return map[string]string{
		AnnotationOwner:     req.Owner,
		AnnotationProject:   req.ProjectName,
		AnnotationProjectID: req.ProjectID,
	}
}

func resourceLabels(req *models.DeploymentRequest, deploymentID string) map[string]string {
	return map[string]string{
		LabelApp:          LabelValue(req.AppName()),
		LabelName:         LabelValue(req.AppName()),
		LabelManagedBy:    ManagedBy,
		LabelOwner:        LabelValue(req.Owner),
		LabelProject:      LabelValue(req.ProjectName),
		LabelProjectID:    LabelValue(req.ProjectID),
		LabelService:      LabelValue(req.ServiceName),
		LabelDeploymentID: LabelValue(deploymentID),
	}
}

func resourceAnnotations(req *models.DeploymentRequest, deploymentID, accessURL string) map[string]string {
	if accessURL == "" {
		accessURL = InternalOnly
	}
	annotations := map[string]string{
		AnnotationOwner:        req.Owner,
		AnnotationProject:      req.ProjectName,
		AnnotationProjectID:    req.ProjectID,
		AnnotationDisplayName:  req.DisplayName,
		AnnotationAccessURL:    accessURL,
		AnnotationDeploymentID: deploymentID,
	}
	if req.ExposureType != models.ExposureNone {
		annotations[AnnotationInternalURL] = InternalURL(req)
	}
	if req.Description != "" {
		annotations[AnnotationDescription] = req.Description
	}
	return annotations
}

// LabelValue coerces s into a valid label value: characters outside
// [A-Za-z0-9-_.] become '-', the result is cut to 63 characters and must begin
// and end with an alphanumeric character.
func LabelValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	v := b.String()
	if len(v) > validation.LabelValueMaxLength {
		v = v[:validation.LabelValueMaxLength]
	}
	return strings.TrimFunc(v, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
}
