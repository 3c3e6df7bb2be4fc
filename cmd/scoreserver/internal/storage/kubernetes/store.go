package kubernetes

import (
	"context"
	"fmt"
	"os"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const managedByLabel = "app.kubernetes.io/managed-by"

// ConfigMapStore keeps the ranking under one key of a ConfigMap so that
// every replica of the server pod restarts from the same list.
type ConfigMapStore struct {
	clientset kubernetes.Interface
	namespace string
	name      string
	key       string
}

func NewConfigMapStore(clientset kubernetes.Interface, namespace, name, key string) *ConfigMapStore {
	return &ConfigMapStore{
		clientset: clientset,
		namespace: namespace,
		name:      name,
		key:       key,
	}
}

func (s *ConfigMapStore) Name() string {
	return fmt.Sprintf("configmap:%s/%s[%s]", s.namespace, s.name, s.key)
}

func (s *ConfigMapStore) Load(ctx context.Context) ([]byte, error) {
	cm, err := s.clientset.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("configmap %s/%s: %w", s.namespace, s.name, os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get configmap %s/%s: %w", s.namespace, s.name, err)
	}

	data, ok := cm.Data[s.key]
	if !ok {
		return nil, fmt.Errorf("configmap %s/%s missing key %s: %w", s.namespace, s.name, s.key, os.ErrNotExist)
	}
	return []byte(data), nil
}

func (s *ConfigMapStore) Save(ctx context.Context, data []byte) error {
	configMaps := s.clientset.CoreV1().ConfigMaps(s.namespace)

	cm, err := configMaps.Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		cm = &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      s.name,
				Namespace: s.namespace,
				Labels:    map[string]string{managedByLabel: "highscore-server"},
			},
			Data: map[string]string{s.key: string(data)},
		}
		if _, err := configMaps.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("failed to create configmap %s/%s: %w", s.namespace, s.name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get configmap %s/%s: %w", s.namespace, s.name, err)
	}

	// Keep other keys; only the ranking is ours.
	cm = cm.DeepCopy()
	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	cm.Data[s.key] = string(data)
	if _, err := configMaps.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update configmap %s/%s: %w", s.namespace, s.name, err)
	}
	return nil
}
