package k8s

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"deploy-orchestrator-go/internal/domain"
)

// Settings controls how the client reaches the API server.
type Settings struct {
	InCluster      bool
	KubeConfigPath string
	RequestTimeout time.Duration
	QPS            float32
	Burst          int
}

// Client implements ControlPlane on top of a client-go clientset.
type Client struct {
	clientset kubernetes.Interface
	logger    *zap.Logger
}

// NewClient creates a new Kubernetes client from in-cluster config or a kubeconfig file.
func NewClient(s Settings, logger *zap.Logger) (*Client, error) {
	var config *rest.Config
	var err error

	if s.InCluster {
		config, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster config: %w", err)
		}
	} else {
		path := s.KubeConfigPath
		if path == "" {
			path = clientcmd.RecommendedHomeFile
		}
		config, err = clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubeconfig: %w", err)
		}
	}

	// Every control-plane call is bounded by the REST timeout.
	config.Timeout = s.RequestTimeout
	if s.QPS > 0 {
		config.QPS = s.QPS
	}
	if s.Burst > 0 {
		config.Burst = s.Burst
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create K8s clientset: %w", err)
	}

	return NewFromClientset(clientset, logger), nil
}

// NewFromClientset wraps an existing clientset, such as the fake one in tests.
func NewFromClientset(clientset kubernetes.Interface, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		clientset: clientset,
		logger:    logger,
	}
}

// Clientset returns the underlying clientset.
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// Ping checks that the API server answers. The discovery call is bounded by
// the REST timeout rather than ctx.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.clientset.Discovery().ServerVersion(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrControlPlaneUnavailable, err)
	}
	return nil
}
