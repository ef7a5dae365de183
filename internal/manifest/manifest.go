// Package manifest turns a deployment request into the ordered set of
// Kubernetes documents that run it. Generation is pure: the same request,
// deployment id and options always yield byte-identical output.
package manifest

import (
	"fmt"
	"net/url"
	"strings"

	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/yaml"

	"deploy-orchestrator-go/internal/models"
)

// Type is the resource-type token used as the manifest set key.
type Type string

const (
	TypeNamespace  Type = "namespace"
	TypeWorkload   Type = "workload"
	TypeService    Type = "service"
	TypeIngress    Type = "ingress"
	TypeConfigMap  Type = "configmap"
	TypeSecret     Type = "secret"
	TypePVC        Type = "pvc"
	TypeAutoscaler Type = "autoscaler"
)

// ApplyOrder is the fixed order in which documents are applied to the cluster.
var ApplyOrder = []Type{
	TypeNamespace,
	TypeConfigMap,
	TypeSecret,
	TypePVC,
	TypeWorkload,
	TypeService,
	TypeIngress,
	TypeAutoscaler,
}

// generationOrder is the order documents are stored in a Set.
var generationOrder = []Type{
	TypeNamespace,
	TypeWorkload,
	TypeService,
	TypeIngress,
	TypeConfigMap,
	TypeSecret,
	TypePVC,
	TypeAutoscaler,
}

// Critical reports whether a failure to apply t must abort the deployment.
func (t Type) Critical() bool {
	return t == TypeNamespace || t == TypeWorkload
}

// Document is one serialized manifest.
type Document struct {
	Type Type
	YAML []byte
}

// Set is an ordered mapping from resource type to serialized document.
type Set struct {
	docs []Document
}

// NewSet builds a set from documents, keeping their order.
func NewSet(docs ...Document) *Set {
	return &Set{docs: docs}
}

// Documents returns the documents in generation order.
func (s *Set) Documents() []Document {
	return s.docs
}

// Types returns the resource types present, in generation order.
func (s *Set) Types() []Type {
	types := make([]Type, 0, len(s.docs))
	for _, d := range s.docs {
		types = append(types, d.Type)
	}
	return types
}

// Get returns the document for t.
func (s *Set) Get(t Type) ([]byte, bool) {
	for _, d := range s.docs {
		if d.Type == t {
			return d.YAML, true
		}
	}
	return nil, false
}

// Has reports whether the set contains t.
func (s *Set) Has(t Type) bool {
	_, ok := s.Get(t)
	return ok
}

// Len returns the number of documents.
func (s *Set) Len() int {
	return len(s.docs)
}

// Strings returns the documents keyed by type token.
func (s *Set) Strings() map[string]string {
	out := make(map[string]string, len(s.docs))
	for _, d := range s.docs {
		out[string(d.Type)] = string(d.YAML)
	}
	return out
}

// Options are the cluster-wide settings that shape generated documents.
type Options struct {
	DefaultHost     string
	IngressClass    string
	StorageClass    string
	ClusterIssuer   string
	ImagePullSecret string
}

// Generator renders manifest sets.
type Generator struct {
	opts Options
}

// NewGenerator creates a generator.
func NewGenerator(opts Options) *Generator {
	if opts.DefaultHost == "" {
		opts.DefaultHost = "localhost"
	}
	return &Generator{opts: opts}
}

// Types returns the resource types a request produces, in generation order.
func Types(req *models.DeploymentRequest) []Type {
	include := map[Type]bool{
		TypeNamespace:  true,
		TypeWorkload:   true,
		TypeService:    req.ExposureType != models.ExposureNone,
		TypeIngress:    req.ExposureType == models.ExposureExternal,
		TypeConfigMap:  len(req.EnvVars) > 0,
		TypeSecret:     len(req.Secrets) > 0,
		TypePVC:        req.HasStorage(),
		TypeAutoscaler: req.EnableAutoscaling,
	}
	types := make([]Type, 0, len(generationOrder))
	for _, t := range generationOrder {
		if include[t] {
			types = append(types, t)
		}
	}
	return types
}

// TypeNames converts types to their string tokens.
func TypeNames(types []Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

// AccessURL returns the public URL of an externally exposed service, or ""
// when the service is not exposed outside the cluster.
func (g *Generator) AccessURL(req *models.DeploymentRequest) string {
	if req.ExposureType != models.ExposureExternal {
		return ""
	}
	scheme := "http"
	if req.EnableHTTPS {
		scheme = "https"
	}
	return scheme + "://" + g.host(req) + publicPath(req, url.PathEscape)
}

// InternalURL returns the in-cluster address of the service.
func InternalURL(req *models.DeploymentRequest) string {
	return fmt.Sprintf("http://%s:%d", serviceName(req), req.ServicePort)
}

// Generate renders every document the request needs. req must already have
// defaults applied.
func (g *Generator) Generate(req *models.DeploymentRequest, deploymentID string) (*Set, error) {
	b := newBuilder(g.opts, req, deploymentID, g.AccessURL(req))

	set := &Set{}
	for _, t := range Types(req) {
		obj, err := b.build(t)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", t, err)
		}
		data, err := yaml.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", t, err)
		}
		set.docs = append(set.docs, Document{Type: t, YAML: data})
	}
	return set, nil
}

// Objects renders the typed objects without serializing them.
func (g *Generator) Objects(req *models.DeploymentRequest, deploymentID string) (map[Type]runtime.Object, error) {
	b := newBuilder(g.opts, req, deploymentID, g.AccessURL(req))
	out := make(map[Type]runtime.Object)
	for _, t := range Types(req) {
		obj, err := b.build(t)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", t, err)
		}
		out[t] = obj
	}
	return out, nil
}

func (g *Generator) host(req *models.DeploymentRequest) string {
	if req.CustomDomain != "" {
		return req.CustomDomain
	}
	return g.opts.DefaultHost
}

// publicPath is the custom path, or /owner/project/service with each segment
// passed through segment. Ingress rules match the decoded request path, so
// only URLs escape.
func publicPath(req *models.DeploymentRequest, segment func(string) string) string {
	if req.CustomPath != "" {
		if p := strings.TrimRight(req.CustomPath, "/"); p != "" {
			return p
		}
		return "/"
	}
	return "/" + segment(req.Owner) + "/" + segment(req.ProjectName) + "/" + segment(req.ServiceName)
}

func rawSegment(s string) string { return s }
