package factory

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/config"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/core"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/logger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/storage/filesystem"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/storage/kubernetes"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/storage/memory"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/storage/redis"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/storage/sqlite"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// StoreFactory creates ledger stores based on configuration
type StoreFactory struct {
	cfg *config.Config

	// Clientset overrides the Kubernetes client built from kubeconfig.
	Clientset k8s.Interface
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config) *StoreFactory {
	return &StoreFactory{cfg: cfg}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Create creates a ledger store based on configuration. The returned
// closer releases the store's connections and must be called on shutdown.
func (f *StoreFactory) Create(ctx context.Context) (core.LedgerStore, io.Closer, error) {
	switch f.cfg.StorageMode {
	case config.StorageFile:
		logger.Info("Creating File Ledger Store", "path", f.cfg.ScoresFile)
		return filesystem.NewFileStore(f.cfg.ScoresFile), nopCloser{}, nil
	case config.StorageMemory:
		logger.Warn("Creating Memory Ledger Store - scores are lost on restart")
		return memory.NewMemoryStore(), nopCloser{}, nil
	case config.StorageKubernetes:
		return f.createKubernetesStore()
	case config.StorageRedis:
		return f.createRedisStore(ctx)
	case config.StorageSQLite:
		return f.createSQLiteStore(ctx)
	default:
		return nil, nil, fmt.Errorf("unknown storage mode: %s", f.cfg.StorageMode)
	}
}

func (f *StoreFactory) createRedisStore(ctx context.Context) (core.LedgerStore, io.Closer, error) {
	logger.Info("Creating Redis Ledger Store", "addr", f.cfg.RedisAddr, "db", f.cfg.RedisDB, "key", f.cfg.RedisKey)

	client, err := redis.Connect(ctx, f.cfg.RedisAddr, f.cfg.RedisPassword, f.cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return redis.NewRedisStore(client, f.cfg.RedisKey), client, nil
}

func (f *StoreFactory) createSQLiteStore(ctx context.Context) (core.LedgerStore, io.Closer, error) {
	logger.Info("Creating SQLite Ledger Store", "path", f.cfg.SQLitePath)

	store, err := sqlite.Open(ctx, f.cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

func (f *StoreFactory) createKubernetesStore() (core.LedgerStore, io.Closer, error) {
	logger.Info("Creating Kubernetes Ledger Store",
		"namespace", f.cfg.Namespace,
		"configmap", f.cfg.ConfigMapName,
		"key", f.cfg.ConfigMapKey)

	clientset := f.Clientset
	if clientset == nil {
		var err error
		clientset, err = f.kubernetesClient()
		if err != nil {
			return nil, nil, err
		}
	}

	store := kubernetes.NewConfigMapStore(clientset, f.cfg.Namespace, f.cfg.ConfigMapName, f.cfg.ConfigMapKey)
	return store, nopCloser{}, nil
}

func (f *StoreFactory) kubernetesClient() (k8s.Interface, error) {
	logger.Info("Creating Kubernetes client",
		"runtime", f.cfg.Runtime,
		"kubeconfig", f.cfg.KubeConfigPath,
		"context", f.cfg.KubeContext)

	kubeconfig := f.cfg.KubeConfigPath

	// For non-Kubernetes runtime, kubeconfig is required
	if f.cfg.Runtime != config.RuntimeKubernetes && kubeconfig == "" {
		if home := os.Getenv("HOME"); home != "" {
			kubeconfig = home + "/.kube/config"
		}
	}

	configOverrides := &clientcmd.ConfigOverrides{}
	if f.cfg.KubeContext != "" {
		configOverrides.CurrentContext = f.cfg.KubeContext
		logger.Info("Using specific Kubernetes context", "context", f.cfg.KubeContext)
	}

	var restConfig *rest.Config
	var err error

	// Try kubeconfig first (for VM/Container runtime or explicit config)
	if kubeconfig != "" {
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			configOverrides,
		).ClientConfig()

		if err != nil {
			logger.Warn("Failed to load kubeconfig, will try in-cluster config", "error", err)
		}
	}

	// Fallback to in-cluster config (for Kubernetes runtime)
	if restConfig == nil {
		logger.Info("Attempting in-cluster Kubernetes configuration")
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w", err)
		}
	}

	clientset, err := k8s.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return clientset, nil
}
