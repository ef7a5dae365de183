package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"deploy-orchestrator-go/internal/allocator"
	"deploy-orchestrator-go/internal/manifest"
	"deploy-orchestrator-go/internal/models"
)

// renderOptions mirrors the service settings that shape generated documents.
type renderOptions struct {
	file         string
	deploymentID string
	generator    manifest.Options
	defaults     models.Defaults
}

// newRenderCommand creates the "render" subcommand.
func newRenderCommand(logger *zap.Logger) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render -f request.yaml",
		Short: "Render the manifests for a deployment request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := loadRequest(opts.file)
			if err != nil {
				return err
			}

			req = req.WithDefaults(opts.defaults)
			if err := req.Validate(); err != nil {
				return err
			}

			gen := manifest.NewGenerator(opts.generator)
			set, err := gen.Generate(&req, opts.deploymentID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, doc := range set.Documents() {
				if i > 0 {
					if _, err := fmt.Fprintln(out, "---"); err != nil {
						return err
					}
				}
				if _, err := fmt.Fprintf(out, "# %s\n%s", doc.Type, doc.YAML); err != nil {
					return err
				}
			}

			logger.Info("rendered manifests",
				zap.String("namespace", req.Namespace()),
				zap.Strings("types", manifest.TypeNames(set.Types())),
				zap.String("access_url", gen.AccessURL(&req)),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Deployment request file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.deploymentID, "id", "preview", "Deployment id stamped into labels")
	cmd.Flags().StringVar(&opts.generator.DefaultHost, "domain", "localhost", "Default ingress host")
	cmd.Flags().StringVar(&opts.generator.IngressClass, "ingress-class", "nginx", "Ingress class name")
	cmd.Flags().StringVar(&opts.generator.StorageClass, "storage-class", "", "Storage class for volume claims")
	cmd.Flags().StringVar(&opts.generator.ClusterIssuer, "cluster-issuer", "letsencrypt-prod", "cert-manager cluster issuer for TLS")
	cmd.Flags().StringVar(&opts.generator.ImagePullSecret, "image-pull-secret", "", "Image pull secret name")
	cmd.Flags().Int32Var(&opts.defaults.Replicas, "replicas", 1, "Default replica count")
	cmd.Flags().StringVar(&opts.defaults.CPURequest, "cpu-request", "100m", "Default CPU request")
	cmd.Flags().StringVar(&opts.defaults.CPULimit, "cpu-limit", "500m", "Default CPU limit")
	cmd.Flags().StringVar(&opts.defaults.MemoryRequest, "memory-request", "128Mi", "Default memory request")
	cmd.Flags().StringVar(&opts.defaults.MemoryLimit, "memory-limit", "512Mi", "Default memory limit")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// loadRequest reads a request file. Unknown fields are rejected so typos
// do not silently fall back to defaults.
func loadRequest(path string) (models.DeploymentRequest, error) {
	var req models.DeploymentRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read request file %q: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &req); err != nil {
		return req, fmt.Errorf("parse request file %q: %w", path, err)
	}
	return req, nil
}

// newNamespaceCommand creates the "namespace" subcommand.
func newNamespaceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "namespace OWNER PROJECT",
		Short: "Print the namespace allocated to an owner and project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := allocator.Namespace(args[0], args[1])
			if ns == "" {
				return fmt.Errorf("owner %q and project %q contain no usable characters", args[0], args[1])
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), ns)
			return err
		},
	}
}
